package world

import (
	"errors"
	"fmt"
)

var (
	ErrLoopRunning    = errors.New("simulation loop is already running")
	ErrLoopNotRunning = errors.New("simulation loop is not running")
	ErrAlreadyLoaded  = errors.New("live set already populated")
)

// PersistenceError is a durable store failure seen by the world. During Add it
// aborts the insert; during Tick it is recorded and the tick still completes.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err came from the durable store.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
