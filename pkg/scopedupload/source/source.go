// Package source turns files on disk, JSON manifests and S3 prefixes into
// batch items.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
)

// Error types
var (
	// ErrEmpty indicates a source produced no items
	ErrEmpty = errors.New("source produced no items")

	// ErrBucketNotFound indicates the S3 bucket does not exist
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied indicates the credentials cannot read the source
	ErrAccessDenied = errors.New("access denied")
)

// Source produces the items of one batch.
type Source interface {
	Items(ctx context.Context) ([]*scopedupload.UploadItem, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context) ([]*scopedupload.UploadItem, error)

func (f Func) Items(ctx context.Context) ([]*scopedupload.UploadItem, error) {
	return f(ctx)
}

// Collect concatenates the items of every source in order. It fails with
// ErrEmpty when nothing was produced.
func Collect(ctx context.Context, sources ...Source) ([]*scopedupload.UploadItem, error) {
	var items []*scopedupload.UploadItem
	for i, src := range sources {
		if src == nil {
			continue
		}
		got, err := src.Items(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		items = append(items, got...)
	}
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	return items, nil
}
