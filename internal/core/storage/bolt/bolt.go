// Package bolt persists sprites in a single bbolt file. Every Save and every
// UpdateAll runs in its own read-write transaction; bbolt commits on a nil
// return and rolls back otherwise.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/storage"
)

var _ storage.Store = (*Store)(nil)

var bucketSprites = []byte("sprites")

// DefaultOpenTimeout bounds how long Open waits for the file lock.
const DefaultOpenTimeout = 2 * time.Second

type Options struct {
	// OpenTimeout bounds the wait for another process holding the file.
	OpenTimeout time.Duration
	// NoSync skips fsync on commit. Only for tests.
	NoSync bool
}

type Store struct {
	db     *bbolt.DB
	logger log.Log
}

// Open opens or creates the database at path and makes sure the sprite
// bucket exists.
func Open(path string, opts Options, logger log.Log) (*Store, error) {
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: opts.OpenTimeout, NoSync: opts.NoSync})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", storage.ErrUnavailable, path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSprites)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: prepare %s: %v", storage.ErrUnavailable, path, err)
	}

	logger = logger.With(log.String("component", "bolt"), log.String("path", path))
	logger.Info("Sprite database opened")

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Save(ctx context.Context, sprite models.Sprite) (models.SpriteID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSprites)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		sprite.ID = models.SpriteID(seq)

		data, err := json.Marshal(sprite)
		if err != nil {
			return err
		}
		return b.Put(idKey(sprite.ID), data)
	})
	if err != nil {
		return 0, s.wrap(err)
	}

	return sprite.ID, nil
}

func (s *Store) UpdateAll(ctx context.Context, sprites []models.Sprite) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var failed []storage.EntryError
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSprites)
		for _, sp := range sprites {
			key := idKey(sp.ID)
			if b.Get(key) == nil {
				failed = append(failed, storage.EntryError{ID: sp.ID, Err: storage.ErrNotFound})
				continue
			}

			data, err := json.Marshal(sp)
			if err != nil {
				failed = append(failed, storage.EntryError{ID: sp.ID, Err: err})
				continue
			}
			if err = b.Put(key, data); err != nil {
				failed = append(failed, storage.EntryError{ID: sp.ID, Err: err})
			}
		}
		return nil
	})
	if err != nil {
		return s.wrap(err)
	}

	if len(failed) > 0 {
		return &storage.UpdateError{Failed: failed}
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]models.Sprite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []models.Sprite
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSprites).ForEach(func(k, v []byte) error {
			var sp models.Sprite
			if err := json.Unmarshal(v, &sp); err != nil {
				return fmt.Errorf("decode sprite %x: %w", k, err)
			}
			out = append(out, sp)
			return nil
		})
	})
	if err != nil {
		return nil, s.wrap(err)
	}

	return out, nil
}

func (s *Store) Close() error {
	s.logger.Info("Closing sprite database")
	return s.db.Close()
}

func (s *Store) wrap(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return storage.ErrClosed
	}
	return err
}

// idKey encodes big-endian so bbolt's byte order is ID order.
func idKey(id models.SpriteID) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}
