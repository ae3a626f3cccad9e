package scopedupload

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrConfigMissing indicates no usable gateway config was supplied
	ErrConfigMissing = errors.New("gateway config missing")

	// ErrTokenIssuance indicates the signing primitive could not produce a token
	ErrTokenIssuance = errors.New("token issuance failed")

	// ErrTransport indicates the transport failed before the gateway answered
	ErrTransport = errors.New("transport failed")

	// ErrAuthFailed indicates the gateway rejected the request with 400
	ErrAuthFailed = errors.New("authentication failed")

	// ErrInvalidPayload indicates an item's base64 payload could not be decoded
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrServer indicates any other gateway failure, including unreadable responses
	ErrServer = errors.New("server error")
)

// ErrorKind classifies why a batch was aborted.
type ErrorKind int

const (
	KindConfigMissing ErrorKind = iota + 1
	KindTokenIssuance
	KindTransport
	KindAuthFailed
	KindServer
	KindInvalidPayload
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConfigMissing:
		return ErrConfigMissing
	case KindTokenIssuance:
		return ErrTokenIssuance
	case KindTransport:
		return ErrTransport
	case KindAuthFailed:
		return ErrAuthFailed
	case KindInvalidPayload:
		return ErrInvalidPayload
	default:
		return ErrServer
	}
}

func (k ErrorKind) String() string {
	return k.sentinel().Error()
}

// UploadError is returned when a batch aborts. Error() yields only the
// user-facing message; Cause keeps the underlying diagnostic.
type UploadError struct {
	Kind    ErrorKind
	Item    string
	Message string
	Cause   error
}

func newError(kind ErrorKind, item, message string, cause error) *UploadError {
	return &UploadError{Kind: kind, Item: item, Message: message, Cause: cause}
}

func (e *UploadError) Error() string {
	return e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's kind.
func (e *UploadError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Detail renders the message together with the item and cause, for logs.
func (e *UploadError) Detail() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Item != "" {
		s = fmt.Sprintf("%s (item %s)", s, e.Item)
	}
	if e.Cause != nil {
		s = fmt.Sprintf("%s: %v", s, e.Cause)
	}
	return s
}

// KindOf returns the kind of err, or 0 when err is not an *UploadError.
func KindOf(err error) ErrorKind {
	var uerr *UploadError
	if errors.As(err, &uerr) {
		return uerr.Kind
	}
	return 0
}
