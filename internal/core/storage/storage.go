// Package storage defines the durable sprite store the world persists to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zeusync/spriteserver/internal/core/models"
)

var (
	ErrNotFound    = errors.New("sprite not found")
	ErrClosed      = errors.New("store is closed")
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the durable side of the sprite world. Every method is a blocking
// call that either completes or returns an error.
type Store interface {
	// Save inserts a new sprite in its own transaction and returns the ID the
	// store assigned. The ID field of the argument is ignored.
	Save(ctx context.Context, sprite models.Sprite) (models.SpriteID, error)

	// UpdateAll writes the position and velocity of every sprite in one
	// transaction. Entries that cannot be written are reported through an
	// *UpdateError while the remaining entries still commit. Any other error
	// means nothing was written.
	UpdateAll(ctx context.Context, sprites []models.Sprite) error

	// LoadAll returns every stored sprite ordered by ID.
	LoadAll(ctx context.Context) ([]models.Sprite, error)

	Close() error
}

// EntryError is the failure of a single sprite inside UpdateAll.
type EntryError struct {
	ID  models.SpriteID
	Err error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("sprite %d: %v", e.ID, e.Err)
}

func (e EntryError) Unwrap() error { return e.Err }

// UpdateError lists the sprites UpdateAll skipped.
type UpdateError struct {
	Failed []EntryError
}

func (e *UpdateError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%d sprite update(s) failed: %s", len(e.Failed), strings.Join(parts, "; "))
}

func (e *UpdateError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}

// FailedIDs returns the IDs of the skipped sprites in the order they failed.
func (e *UpdateError) FailedIDs() []models.SpriteID {
	ids := make([]models.SpriteID, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.ID
	}
	return ids
}

// AsUpdateError extracts an *UpdateError from err, if there is one.
func AsUpdateError(err error) (*UpdateError, bool) {
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
