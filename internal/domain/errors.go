package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors crossing component boundaries.
type ErrorKind string

const (
	KindUnknownProvider         ErrorKind = "unknown_provider"
	KindMissingCredential       ErrorKind = "missing_credential"
	KindForbidden               ErrorKind = "forbidden"
	KindNotFound                ErrorKind = "not_found"
	KindUpstreamRateLimit       ErrorKind = "upstream_rate_limit"
	KindUpstreamAuth            ErrorKind = "upstream_auth"
	KindUpstreamNetwork         ErrorKind = "upstream_network"
	KindUpstreamContentFiltered ErrorKind = "upstream_content_filtered"
	KindClientDisconnected      ErrorKind = "client_disconnected"
	KindInvalidRequest          ErrorKind = "invalid_request"
	KindConflict                ErrorKind = "conflict"
	KindRateLimited             ErrorKind = "rate_limited"
	KindInternal                ErrorKind = "internal"
)

// Error is the shared error type of chatd.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrUnknownProvider         = &Error{Kind: KindUnknownProvider}
	ErrMissingCredential       = &Error{Kind: KindMissingCredential}
	ErrForbidden               = &Error{Kind: KindForbidden}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrUpstreamRateLimit       = &Error{Kind: KindUpstreamRateLimit}
	ErrUpstreamAuth            = &Error{Kind: KindUpstreamAuth}
	ErrUpstreamNetwork         = &Error{Kind: KindUpstreamNetwork}
	ErrUpstreamContentFiltered = &Error{Kind: KindUpstreamContentFiltered}
	ErrClientDisconnected      = &Error{Kind: KindClientDisconnected}
	ErrInvalidRequest          = &Error{Kind: KindInvalidRequest}
	ErrConflict                = &Error{Kind: KindConflict}
	ErrRateLimited             = &Error{Kind: KindRateLimited}
	ErrInternal                = &Error{Kind: KindInternal}
)

// NewError creates an Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error that wraps cause.
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by kind so that errors.Is(err, ErrForbidden) holds for any forbidden error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsUpstream reports whether kind originates from a provider adapter.
func (k ErrorKind) IsUpstream() bool {
	switch k {
	case KindUpstreamRateLimit, KindUpstreamAuth, KindUpstreamNetwork, KindUpstreamContentFiltered:
		return true
	}
	return false
}
