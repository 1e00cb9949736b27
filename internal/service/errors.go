package service

import "errors"

var (
	ErrInvalidPosition  = errors.New("position outside the window")
	ErrStoreUnreachable = errors.New("durable store unreachable")
	ErrAlreadyStarted   = errors.New("service already started")
	ErrNotStarted       = errors.New("service not started")
	ErrNotLoaded        = errors.New("live set not loaded yet")
)
