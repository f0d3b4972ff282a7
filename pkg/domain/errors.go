package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidArgument       = NewErr("INVALID_ARGUMENT", "invalid argument")
	ErrNotFound              = NewErr("NOT_FOUND", "not found")
	ErrUnsupportedContent    = NewErr("UNSUPPORTED_CONTENT", "unsupported content")
	ErrContentTooLarge       = ErrUnsupportedContent.Sub("CONTENT_TOO_LARGE", "content too large")
	ErrUpstreamRequestFailed = NewErr("UPSTREAM_REQUEST_FAILED", "upstream request failed")
	ErrTypeMismatch          = NewErr("TYPE_MISMATCH", "file type mismatch")
)

// Err is a sentinel error kind. Callers attach detail with errors.Wrap and
// match with errors.Is.
type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	parent *Err
}

func (e *Err) Error() string { return e.Msg }

// Is reports whether target is the kind e refines.
func (e *Err) Is(target error) bool {
	return e.parent != nil && target == error(e.parent)
}

func NewErr(code, msg string) *Err {
	return &Err{Code: code, Msg: msg}
}

// Sub returns a narrower kind that still matches e under errors.Is.
func (e *Err) Sub(code, msg string) *Err {
	return &Err{Code: code, Msg: msg, parent: e}
}

const maxBodyInError = 512

// UpstreamError is returned for every non-2xx response from a remote service.
type UpstreamError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func NewUpstreamError(method, url string, status int, body []byte) *UpstreamError {
	return &UpstreamError{Method: method, URL: url, Status: status, Body: string(body)}
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	return fmt.Sprintf("%s: %s %s: status %d: %s", ErrUpstreamRequestFailed.Msg, e.Method, e.URL, e.Status, body)
}

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case error(ErrUpstreamRequestFailed):
		return true
	case error(ErrNotFound):
		return e.Status == 404
	}
	return false
}

// Code returns the taxonomy code carried by err, or "UNKNOWN".
func Code(err error) string {
	if err == nil {
		return ""
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ErrUpstreamRequestFailed.Code
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Code
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Code
	}
	return "UNKNOWN"
}

// Kind returns the broadest kind err belongs to, so ErrContentTooLarge
// reports ErrUnsupportedContent. It returns nil when err carries no kind.
func Kind(err error) *Err {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ErrUpstreamRequestFailed
	}
	var e *Err
	if !errors.As(err, &e) {
		return nil
	}
	for e.parent != nil {
		e = e.parent
	}
	return e
}
