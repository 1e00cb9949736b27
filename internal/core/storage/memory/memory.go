// Package memory is an in-process storage.Store used by tests and by
// servers started without a database path. It can be told to fail on demand.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	sprites map[models.SpriteID]models.Sprite
	nextID  models.SpriteID
	closed  bool

	saveErr      error
	updateAllErr error
	entryErrs    map[models.SpriteID]error

	saves   int
	updates int
}

func New() *Store {
	return &Store{
		sprites:   make(map[models.SpriteID]models.Sprite),
		entryErrs: make(map[models.SpriteID]error),
	}
}

// Seed inserts sprites with their IDs as given. The ID counter moves past the
// largest one.
func (s *Store) Seed(sprites ...models.Sprite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range sprites {
		s.sprites[sp.ID] = sp
		if sp.ID > s.nextID {
			s.nextID = sp.ID
		}
	}
}

// FailSave makes every following Save return err. Pass nil to clear.
func (s *Store) FailSave(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

// FailUpdateAll makes every following UpdateAll fail as a whole.
func (s *Store) FailUpdateAll(err error) {
	s.mu.Lock()
	s.updateAllErr = err
	s.mu.Unlock()
}

// FailEntry makes UpdateAll skip the sprite with id and report err for it.
func (s *Store) FailEntry(id models.SpriteID, err error) {
	s.mu.Lock()
	if err == nil {
		delete(s.entryErrs, id)
	} else {
		s.entryErrs[id] = err
	}
	s.mu.Unlock()
}

func (s *Store) Save(ctx context.Context, sprite models.Sprite) (models.SpriteID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, storage.ErrClosed
	}
	if s.saveErr != nil {
		return 0, s.saveErr
	}

	s.nextID++
	sprite.ID = s.nextID
	s.sprites[sprite.ID] = sprite
	s.saves++
	return sprite.ID, nil
}

func (s *Store) UpdateAll(ctx context.Context, sprites []models.Sprite) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if s.updateAllErr != nil {
		return s.updateAllErr
	}

	// Stage first so a whole-batch failure never leaves a partial write.
	staged := make(map[models.SpriteID]models.Sprite, len(sprites))
	var failed []storage.EntryError
	for _, sp := range sprites {
		if err, ok := s.entryErrs[sp.ID]; ok {
			failed = append(failed, storage.EntryError{ID: sp.ID, Err: err})
			continue
		}
		if _, ok := s.sprites[sp.ID]; !ok {
			failed = append(failed, storage.EntryError{ID: sp.ID, Err: storage.ErrNotFound})
			continue
		}
		staged[sp.ID] = sp
	}

	for id, sp := range staged {
		s.sprites[id] = sp
	}
	s.updates++

	if len(failed) > 0 {
		return &storage.UpdateError{Failed: failed}
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]models.Sprite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	out := make([]models.Sprite, 0, len(s.sprites))
	for _, sp := range s.sprites {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the stored copy of one sprite.
func (s *Store) Get(id models.SpriteID) (models.Sprite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.sprites[id]
	return sp, ok
}

// Counts reports how many Save and UpdateAll calls committed.
func (s *Store) Counts() (saves, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves, s.updates
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
