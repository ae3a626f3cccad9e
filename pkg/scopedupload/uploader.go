package scopedupload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/scoped-upload/pkg/scopedupload/messages"
	"github.com/tendant/scoped-upload/pkg/scopedupload/mimetype"
)

// Messages resolves message keys to user-facing text.
type Messages interface {
	Message(key string) string
}

// Uploader runs batches of uploads against one gateway.
type Uploader struct {
	cfg        GatewayConfig
	issuer     *TokenIssuer
	signer     Signer
	transport  Transport
	mimeLookup MimeLookup
	messages   Messages
	hooks      Hooks
	logger     *slog.Logger
	now        func() time.Time
}

// Option is a functional option for configuring an Uploader
type Option func(*Uploader)

// WithSigner replaces the default JWT signer
func WithSigner(signer Signer) Option {
	return func(u *Uploader) {
		u.signer = signer
	}
}

// WithTransport replaces the default HTTP transport
func WithTransport(transport Transport) Option {
	return func(u *Uploader) {
		u.transport = transport
	}
}

// WithMimeLookup replaces the extension based content type lookup
func WithMimeLookup(lookup MimeLookup) Option {
	return func(u *Uploader) {
		u.mimeLookup = lookup
	}
}

// WithMessages sets the catalog used for user-facing error text
func WithMessages(m Messages) Option {
	return func(u *Uploader) {
		u.messages = m
	}
}

// WithHooks appends lifecycle hooks
func WithHooks(h Hooks) Option {
	return func(u *Uploader) {
		u.hooks.merge(h)
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// WithClock sets the clock used for token timestamps
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) {
		u.now = now
	}
}

// New creates an Uploader for cfg. It fails with ErrConfigMissing when cfg is
// nil or cannot address a gateway.
func New(cfg *GatewayConfig, opts ...Option) (*Uploader, error) {
	u := &Uploader{
		transport:  NewHTTPTransport(),
		mimeLookup: mimetype.Lookup,
		messages:   messages.Default(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}

	if err := cfg.Validate(); err != nil {
		var uerr *UploadError
		if errors.As(err, &uerr) {
			if uerr.Cause == nil {
				uerr.Cause = errors.New(uerr.Message)
			}
			uerr.Message = u.messages.Message(messages.ConfigMissing)
		}
		return nil, err
	}

	u.cfg = cfg.Normalize()
	u.issuer = NewTokenIssuer(u.cfg, u.signer)
	u.issuer.Now = u.now
	u.issuer.logger = u.logger
	return u, nil
}

// Config returns the normalized gateway config.
func (u *Uploader) Config() GatewayConfig {
	return u.cfg
}

// Issuer exposes the token issuer bound to this uploader's config.
func (u *Uploader) Issuer() *TokenIssuer {
	return u.issuer
}

// UploadAll uploads items one at a time, in order. Each successful item is
// mutated in place: its payload is cleared and RetrievalURL is set. Items
// without a name or payload are skipped. The first failure aborts the batch;
// items uploaded before it keep their mutations.
//
// The returned results cover every item processed up to and including the
// failing one.
func (u *Uploader) UploadAll(ctx context.Context, items []*UploadItem) ([]ItemResult, error) {
	results := make([]ItemResult, 0, len(items))

	for i, item := range items {
		if item == nil || item.FileName == "" || !item.hasPayload() {
			name := ""
			if item != nil {
				name = item.FileName
			}
			u.logger.Warn("Skipping item without name or payload", "index", i, "file_name", name)
			result := ItemResult{Index: i, FileName: name, Status: ItemSkipped}
			results = append(results, result)
			u.afterUpload(ctx, result)
			continue
		}

		retrievalURL, err := u.uploadOne(ctx, item)
		if err != nil {
			var uerr *UploadError
			if errors.As(err, &uerr) {
				u.logger.Error("Batch aborted", "index", i, "file_name", item.FileName, "err", uerr.Detail())
			} else {
				u.logger.Error("Batch aborted", "index", i, "file_name", item.FileName, "err", err)
			}
			result := ItemResult{Index: i, FileName: item.FileName, Status: ItemFailed, Err: err}
			results = append(results, result)
			u.afterUpload(ctx, result)
			for _, hook := range u.hooks.OnError {
				hook(ctx, item, err)
			}
			return results, err
		}

		item.Buffer = nil
		item.Base64 = ""
		item.RetrievalURL = retrievalURL

		u.logger.Info("Item uploaded", "index", i, "file_name", item.FileName)
		result := ItemResult{Index: i, FileName: item.FileName, Status: ItemUploaded, RetrievalURL: retrievalURL}
		results = append(results, result)
		u.afterUpload(ctx, result)
	}

	return results, nil
}

// uploadOne runs token, request, transport and response handling for one
// item and returns its retrieval URL. It does not mutate item.
func (u *Uploader) uploadOne(ctx context.Context, item *UploadItem) (string, error) {
	itemPath := CanonicalPath(item.FileName)

	payload, err := decodePayload(item)
	if err != nil {
		return "", newError(KindInvalidPayload, itemPath, u.messages.Message(messages.InvalidPayload), err)
	}

	token, err := u.issuer.Issue(itemPath, ScopeUpload)
	if err != nil {
		return "", newError(KindTokenIssuance, itemPath, u.messages.Message(messages.TokenFailed), errors.Unwrap(err))
	}

	req := BuildUploadRequest(u.cfg, itemPath, token, payload, item.FileName, u.mimeLookup)
	for _, hook := range u.hooks.BeforeUpload {
		if err := hook(ctx, item, req); err != nil {
			u.logger.Warn("BeforeUpload hook failed", "file_name", item.FileName, "err", err)
		}
	}

	u.logger.Debug("Uploading item", "file_name", item.FileName, "url", req.URL, "bytes", len(payload))
	resp, transportErr := u.transport.Do(ctx, req)
	if transportErr != nil {
		resp = u.syntheticAuthFailure()
	}

	if err := u.interpret(resp, itemPath); err != nil {
		var uerr *UploadError
		if transportErr != nil && errors.As(err, &uerr) {
			uerr.Kind = KindTransport
			uerr.Cause = transportErr
		}
		return "", err
	}

	retrievalURL, err := u.issuer.BuildRetrievalURL(itemPath)
	if err != nil {
		return "", newError(KindTokenIssuance, itemPath, u.messages.Message(messages.TokenFailed), errors.Unwrap(err))
	}
	return retrievalURL, nil
}

func decodePayload(item *UploadItem) ([]byte, error) {
	if len(item.Buffer) > 0 {
		return item.Buffer, nil
	}
	data := strings.TrimSpace(item.Base64)
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	var lastErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		decoded, err := enc.DecodeString(data)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("decode base64 payload: %w", lastErr)
}

// syntheticAuthFailure is what a transport failure is reported as.
func (u *Uploader) syntheticAuthFailure() *Response {
	body, _ := json.Marshal(map[string]string{"error": u.messages.Message(messages.AuthFailed)})
	return &Response{StatusCode: http.StatusBadRequest, Body: body}
}

// interpret classifies a gateway response. Anything that goes wrong while
// reading it is reported as a generic server error.
func (u *Uploader) interpret(resp *Response, itemPath string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindServer, itemPath, u.messages.Message(messages.ServerError), fmt.Errorf("interpret response: %v", r))
		}
	}()

	if resp == nil {
		return newError(KindServer, itemPath, u.messages.Message(messages.ServerError), errors.New("transport returned no response"))
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusBadRequest:
		msg, perr := gatewayErrorMessage(resp.Body)
		if perr != nil {
			return newError(KindServer, itemPath, u.messages.Message(messages.ServerError), perr)
		}
		if msg == "" {
			msg = u.messages.Message(messages.AuthFailed)
		}
		return newError(KindAuthFailed, itemPath, msg, fmt.Errorf("gateway returned status %d", resp.StatusCode))
	default:
		msg, perr := gatewayErrorMessage(resp.Body)
		if perr != nil {
			return newError(KindServer, itemPath, u.messages.Message(messages.ServerError), perr)
		}
		if msg == "" {
			msg = u.messages.Message(messages.ServerError)
		}
		return newError(KindServer, itemPath, msg, fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}
}

// gatewayErrorMessage extracts the error field of a JSON body. Bodies that
// parse but are not objects carry no message. A string field is used as is,
// an object contributes its message, anything else is printed.
func gatewayErrorMessage(body []byte) (string, error) {
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response body: %w", err)
	}
	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return "", nil
	}
	switch v := obj["error"].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg, nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("render error field: %w", err)
		}
		return string(encoded), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (u *Uploader) afterUpload(ctx context.Context, result ItemResult) {
	for _, hook := range u.hooks.AfterUpload {
		if err := hook(ctx, result); err != nil {
			u.logger.Warn("AfterUpload hook failed", "file_name", result.FileName, "err", err)
		}
	}
}
