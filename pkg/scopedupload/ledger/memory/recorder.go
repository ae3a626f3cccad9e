package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/scoped-upload/pkg/scopedupload/ledger"
)

// Recorder implements ledger.Recorder using in-memory storage
type Recorder struct {
	mu      sync.RWMutex
	batches map[uuid.UUID][]*ledger.Entry
}

// New creates a new in-memory recorder
func New() *Recorder {
	return &Recorder{
		batches: make(map[uuid.UUID][]*ledger.Entry),
	}
}

func (r *Recorder) Record(ctx context.Context, entry *ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to avoid external modifications
	entryCopy := *entry
	r.batches[entry.BatchID] = append(r.batches[entry.BatchID], &entryCopy)
	return nil
}

func (r *Recorder) ListBatch(ctx context.Context, batchID uuid.UUID) ([]*ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.batches[batchID]
	if !ok {
		return nil, ledger.ErrBatchNotFound
	}

	entries := make([]*ledger.Entry, 0, len(stored))
	for _, e := range stored {
		entryCopy := *e
		entries = append(entries, &entryCopy)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries, nil
}
