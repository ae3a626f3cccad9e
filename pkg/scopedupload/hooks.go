package scopedupload

import "context"

// Hooks let a host observe a batch without changing its outcome.
// Hook errors are logged and otherwise ignored.
type Hooks struct {
	// BeforeUpload is called once the item's token and request are ready,
	// right before the transport call.
	BeforeUpload []BeforeUploadHook

	// AfterUpload is called for every item that reached a terminal state:
	// uploaded, skipped or failed.
	AfterUpload []AfterUploadHook

	// OnError is called once when an item aborts the batch, after AfterUpload.
	OnError []OnErrorHook
}

// BeforeUploadHook is called before an item is sent to the gateway
type BeforeUploadHook func(ctx context.Context, item *UploadItem, req *UploadRequest) error

// AfterUploadHook is called after an item is resolved
type AfterUploadHook func(ctx context.Context, result ItemResult) error

// OnErrorHook is called with the error that aborted the batch
type OnErrorHook func(ctx context.Context, item *UploadItem, err error)

func (h *Hooks) merge(other Hooks) {
	h.BeforeUpload = append(h.BeforeUpload, other.BeforeUpload...)
	h.AfterUpload = append(h.AfterUpload, other.AfterUpload...)
	h.OnError = append(h.OnError, other.OnError...)
}
