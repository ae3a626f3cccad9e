// Package ledger records the outcome of every item in a batch. Recorders are
// attached to an Uploader through its AfterUpload hook.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
)

// ErrBatchNotFound is returned when a batch has no recorded entries.
var ErrBatchNotFound = errors.New("batch not found")

// Entry is one recorded item outcome.
type Entry struct {
	ID           uuid.UUID               `json:"id"`
	BatchID      uuid.UUID               `json:"batch_id"`
	Index        int                     `json:"index"`
	FileName     string                  `json:"file_name"`
	Status       scopedupload.ItemStatus `json:"status"`
	RetrievalURL string                  `json:"retrieval_url,omitempty"`
	ErrorKind    string                  `json:"error_kind,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	ListBatch(ctx context.Context, batchID uuid.UUID) ([]*Entry, error)
}

// NewEntry converts an item result into an entry of batchID.
func NewEntry(batchID uuid.UUID, result scopedupload.ItemResult, now time.Time) *Entry {
	e := &Entry{
		ID:           uuid.New(),
		BatchID:      batchID,
		Index:        result.Index,
		FileName:     result.FileName,
		Status:       result.Status,
		RetrievalURL: result.RetrievalURL,
		CreatedAt:    now.UTC(),
	}
	if result.Err != nil {
		e.ErrorKind = scopedupload.KindOf(result.Err).String()
		e.ErrorMessage = result.Err.Error()
	}
	return e
}

// Hooks returns uploader hooks that record every item result under batchID.
// A failing recorder is logged by the uploader and does not stop the batch.
func Hooks(rec Recorder, batchID uuid.UUID) scopedupload.Hooks {
	return scopedupload.Hooks{
		AfterUpload: []scopedupload.AfterUploadHook{
			func(ctx context.Context, result scopedupload.ItemResult) error {
				return rec.Record(ctx, NewEntry(batchID, result, time.Now()))
			},
		},
	}
}

// Summary counts entries by status.
type Summary struct {
	Uploaded int `json:"uploaded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Summarize counts entries by status.
func Summarize(entries []*Entry) Summary {
	var s Summary
	for _, e := range entries {
		switch e.Status {
		case scopedupload.ItemUploaded:
			s.Uploaded++
		case scopedupload.ItemSkipped:
			s.Skipped++
		case scopedupload.ItemFailed:
			s.Failed++
		}
	}
	return s
}
