package scopedupload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Transport executes an upload descriptor. A returned error means the gateway
// never produced a response.
type Transport interface {
	Do(ctx context.Context, req *UploadRequest) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *UploadRequest) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, req *UploadRequest) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport sends upload descriptors as multipart/form-data over net/http.
type HTTPTransport struct {
	httpClient    *http.Client
	retryAttempts int
	retryDelay    time.Duration
	progressFunc  ProgressFunc
	maxBodyBytes  int64
}

// ProgressFunc is called during upload with the number of bytes sent so far
type ProgressFunc func(bytesUploaded int64)

// TransportOption is a functional option for configuring an HTTPTransport
type TransportOption func(*HTTPTransport)

// NewHTTPTransport creates a transport. By default it makes a single attempt.
func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // Long timeout for large uploads
		},
		retryAttempts: 1,
		retryDelay:    1 * time.Second,
		maxBodyBytes:  1 << 20,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		t.httpClient = client
	}
}

// WithRetry retries network errors and 5xx responses. 4xx responses are never retried.
func WithRetry(attempts int, delay time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		if attempts < 1 {
			attempts = 1
		}
		t.retryAttempts = attempts
		t.retryDelay = delay
	}
}

// WithProgress sets a progress callback function
func WithProgress(fn ProgressFunc) TransportOption {
	return func(t *HTTPTransport) {
		t.progressFunc = fn
	}
}

func (t *HTTPTransport) Do(ctx context.Context, req *UploadRequest) (*Response, error) {
	body, contentType, err := encodeMultipart(req.File)
	if err != nil {
		return nil, fmt.Errorf("failed to encode multipart body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < t.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.retryDelay * time.Duration(attempt)):
			}
		}

		var reader io.Reader = bytes.NewReader(body)
		if t.progressFunc != nil {
			reader = &progressReader{reader: reader, callback: t.progressFunc}
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.ContentLength = int64(len(body))

		for k, values := range req.Header {
			for _, v := range values {
				httpReq.Header.Add(k, v)
			}
		}
		// The descriptor only marks the body as multipart; the boundary is ours.
		httpReq.Header.Set("Content-Type", contentType)
		if host := req.Header.Get("Host"); host != "" {
			httpReq.Host = host
		}

		resp, err := t.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("upload failed: %w", err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode >= 500 && attempt < t.retryAttempts-1 {
			lastErr = fmt.Errorf("upload failed with status: %s", resp.Status)
			continue
		}
		return &Response{StatusCode: resp.StatusCode, Body: data}, nil
	}

	return nil, fmt.Errorf("upload failed after %d attempts: %w", t.retryAttempts, lastErr)
}

func encodeMultipart(part FilePart) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	field := part.FieldName
	if field == "" {
		field = FileFieldName
	}
	contentType := part.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(field), escapeQuotes(part.FileName)))
	h.Set("Content-Type", contentType)

	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(part.Content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressReader wraps an io.Reader to track upload progress
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.bytesRead)
	}
	return n, err
}
