package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a provider call failure.
type ErrorKind string

const (
	KindAuth       ErrorKind = "AUTH_ERROR"
	KindRateLimit  ErrorKind = "RATE_LIMIT"
	KindAPI        ErrorKind = "API_ERROR"
	KindNetwork    ErrorKind = "NETWORK_ERROR"
	KindValidation ErrorKind = "VALIDATION_ERROR"
)

// Error is the classified failure of a provider call.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Provider   string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same call may succeed later.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindAPI, KindNetwork:
		return true
	}
	return false
}

// ClassifyStatus maps an HTTP status (or a body code using HTTP semantics)
// to an Error. It returns nil for 1xx-3xx.
func ClassifyStatus(provider string, status int, message string) *Error {
	var kind ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status >= 500:
		kind = KindAPI
	case status >= 400:
		kind = KindValidation
	default:
		return nil
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: kind, StatusCode: status, Provider: provider, Message: message}
}

// ClassifyTransport wraps a failed round trip. Context cancellation is
// returned unchanged so callers can tell shutdown from a network fault.
func ClassifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: KindNetwork, Provider: provider, Message: err.Error(), Err: err}
}

// KindOf extracts the ErrorKind of err, or "" when err is not classified.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// IsRetryable reports whether err is a classified, retryable provider error.
func IsRetryable(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Retryable()
}

// MissingKey is the error returned by Submit when a client has no credentials.
func MissingKey(provider string) *Error {
	return &Error{Kind: KindAuth, Provider: provider, Message: "api key is not configured"}
}
