// Package apperr defines the error taxonomy shared by every download component.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers, metrics and response codes.
type Kind string

const (
	KindInvalidURL       Kind = "invalid_url"
	KindSchemeNotAllowed Kind = "scheme_not_allowed"
	KindHostNotAllowed   Kind = "host_not_allowed"
	KindTooLarge         Kind = "too_large"
	KindTimeout          Kind = "timeout"
	KindHTTPStatus       Kind = "http_status"
	KindRequestFailed    Kind = "request_failed"
	KindWriteFailed      Kind = "write_failed"
	KindDirectory        Kind = "directory_error"
	KindAlreadyExists    Kind = "already_exists"
	KindUnknownCommand   Kind = "unknown_command"
	KindMalformedRequest Kind = "malformed_request"
	KindBatchRejected    Kind = "batch_rejected"
	KindBatchFailed      Kind = "batch_failed"
	KindInternal         Kind = "internal"
)

// Error is the single error type surfaced by the download core.
type Error struct {
	Kind    Kind
	Message string
	// StatusCode is only set for KindHTTPStatus.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// HTTPStatus reports a non-2xx response.
func HTTPStatus(code int, status string) *Error {
	return &Error{
		Kind:       KindHTTPStatus,
		Message:    fmt.Sprintf("HTTP %d: %s", code, status),
		StatusCode: code,
	}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
