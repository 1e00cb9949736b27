package client

import (
	"errors"
	"fmt"

	"github.com/zeusync/spriteserver/internal/core/protocol"
)

// Client-specific errors
var (
	ErrClientClosed     = errors.New("client is closed")
	ErrNotConnected     = errors.New("client is not connected")
	ErrAlreadyConnected = errors.New("client is already connected")
	ErrInvalidConfig    = errors.New("invalid client configuration")
	ErrWatchUnsupported = errors.New("watch needs the websocket transport")

	// ErrStore means the server could not persist the request.
	ErrStore = errors.New("server store failure")
	// ErrInvalidRequest means the server rejected the arguments.
	ErrInvalidRequest = errors.New("request rejected by server")
)

// TransportError is a failure to reach the server or to get a usable answer
// from it. The call may or may not have taken effect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	remote, ok := protocol.AsError(err)
	if !ok {
		return &TransportError{Op: op, Err: err}
	}
	switch remote.Code {
	case protocol.CodeStore:
		return fmt.Errorf("%s: %w: %w", op, ErrStore, remote)
	case protocol.CodeInvalidRequest:
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidRequest, remote)
	default:
		return &TransportError{Op: op, Err: remote}
	}
}
