package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed      = errors.New("connection is closed")
	ErrMessageTooLarge       = errors.New("message too large")
	ErrInvalidMessage        = errors.New("invalid message")
	ErrInvalidParams         = errors.New("invalid params")
	ErrSerializationFailed   = errors.New("message serialization failed")
	ErrDeserializationFailed = errors.New("message deserialization failed")
	ErrUnknownMethod         = errors.New("unknown method")
	ErrWatchUnsupported      = errors.New("watch not supported on this transport")
	ErrUnexpectedResponse    = errors.New("unexpected response")

	// Remote failure classes, matched by errors.Is against an *Error.

	ErrRemoteTransport = errors.New("remote transport failure")
	ErrRemoteStore     = errors.New("remote store failure")
	ErrRemoteRequest   = errors.New("remote rejected request")
	ErrRemoteInternal  = errors.New("remote internal error")
)

// Code classifies a remote failure.
type Code string

const (
	CodeTransport      Code = "transport"
	CodeStore          Code = "store"
	CodeInvalidRequest Code = "invalid_request"
	CodeUnknownMethod  Code = "unknown_method"
	CodeInternal       Code = "internal"
)

// Error is a failure reported by the remote side.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the failure class so callers can use errors.Is.
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeTransport:
		return ErrRemoteTransport
	case CodeStore:
		return ErrRemoteStore
	case CodeInvalidRequest:
		return ErrRemoteRequest
	case CodeUnknownMethod:
		return ErrUnknownMethod
	default:
		return ErrRemoteInternal
	}
}

// AsError extracts a remote *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
