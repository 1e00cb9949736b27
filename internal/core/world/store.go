package world

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/storage"
	"github.com/zeusync/spriteserver/internal/core/systems/physics"
)

// Config holds the simulation constants of a Store.
type Config struct {
	Bounds   models.Bounds
	MaxSpeed int

	// Rand drives velocity draws. Nil means a randomly seeded source.
	Rand *rand.Rand
	// Stepper moves one sprite per tick. Nil means physics.Bounce.
	Stepper physics.Stepper
}

// DefaultConfig returns a 500x500 box, 10px sprites and a top speed of 5.
func DefaultConfig() Config {
	return Config{
		Bounds:   models.DefaultBounds(),
		MaxSpeed: models.DefaultMaxSpeed,
	}
}

// TickResult describes one pass of Tick.
type TickResult struct {
	Tick     uint64
	Sprites  int
	Duration time.Duration
	// Failed lists sprites whose new state did not reach the durable store.
	// Their in-memory state advanced anyway.
	Failed []models.SpriteID
	// Err is set when persistence failed, wholly or partly.
	Err error
}

// Store owns the live sprite set. It is the only writer of sprite positions
// and the only place sprites are inserted.
//
// Live-set mutations (Add's insert and Tick's step) serialize on mu. Ticks
// also serialize with each other on tickMu, which is held across the durable
// write so tick batches reach the store in order. Readers never take either
// lock: every mutation publishes a fresh immutable Snapshot through view.
type Store struct {
	bounds   models.Bounds
	maxSpeed int
	stepper  physics.Stepper
	durable  storage.Store
	colors   *ColorSequencer
	logger   log.Log

	randMu sync.Mutex
	rand   *rand.Rand

	tickMu sync.Mutex
	mu     sync.Mutex
	live   []models.Sprite
	tick   uint64

	view atomic.Pointer[Snapshot]

	persistFailures atomic.Uint64
}

func NewStore(cfg Config, durable storage.Store, colors *ColorSequencer, logger log.Log) *Store {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Stepper == nil {
		cfg.Stepper = physics.Bounce
	}
	if colors == nil {
		colors = NewColorSequencer()
	}

	s := &Store{
		bounds:   cfg.Bounds,
		maxSpeed: cfg.MaxSpeed,
		stepper:  cfg.Stepper,
		durable:  durable,
		colors:   colors,
		rand:     cfg.Rand,
		logger:   logger.With(log.String("component", "world")),
	}

	s.commit(nil)
	return s
}

func (s *Store) Bounds() models.Bounds { return s.bounds }

// Load seeds an empty live set from the durable store.
func (s *Store) Load(ctx context.Context) (int, error) {
	sprites, err := s.durable.LoadAll(ctx)
	if err != nil {
		return 0, &PersistenceError{Op: "load", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.live) > 0 {
		return 0, ErrAlreadyLoaded
	}
	s.live = append(s.live, sprites...)
	s.publishLocked()

	s.logger.Info("Live set loaded", log.Int("sprites", len(sprites)))
	return len(sprites), nil
}

// Add creates a sprite at (x, y), persists it and inserts it into the live
// set. If the durable store refuses the sprite nothing is inserted.
func (s *Store) Add(ctx context.Context, x, y int) (models.Sprite, error) {
	sprite := models.Sprite{X: x, Y: y, Color: s.colors.Next()}
	sprite.DX, sprite.DY = s.drawVelocity()

	id, err := s.durable.Save(ctx, sprite)
	if err != nil {
		s.logger.Error("Failed to save sprite",
			log.Int("x", x), log.Int("y", y), log.Error(err))
		return models.Sprite{}, &PersistenceError{Op: "save", Err: err}
	}
	sprite.ID = id

	s.commit(func() { s.live = append(s.live, sprite) })

	s.logger.Debug("Sprite added",
		log.Uint64("id", uint64(id)),
		log.String("color", sprite.Color.String()),
		log.Int("x", x), log.Int("y", y))

	return sprite, nil
}

// Tick moves every live sprite once, publishes the result and then writes it
// to the durable store in one batch. Persistence failures are logged and
// reported in the result; the in-memory step is never rolled back.
func (s *Store) Tick(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()

	snap := s.commit(s.stepLocked)

	res := TickResult{Tick: snap.Tick, Sprites: len(snap.Sprites)}
	if len(snap.Sprites) > 0 {
		if err := s.durable.UpdateAll(ctx, snap.Sprites); err != nil {
			res.Err = &PersistenceError{Op: "update", Err: err}
			if ue, ok := storage.AsUpdateError(err); ok {
				res.Failed = ue.FailedIDs()
				for _, f := range ue.Failed {
					s.logger.Warn("Sprite update not persisted",
						log.Uint64("tick", res.Tick),
						log.Uint64("id", uint64(f.ID)),
						log.Error(f.Err))
				}
			} else {
				res.Failed = make([]models.SpriteID, len(snap.Sprites))
				for i, sp := range snap.Sprites {
					res.Failed[i] = sp.ID
				}
				s.logger.Error("Tick not persisted",
					log.Uint64("tick", res.Tick),
					log.Int("sprites", len(snap.Sprites)),
					log.Error(err))
			}
			s.persistFailures.Add(uint64(len(res.Failed)))
		}
	}
	res.Duration = time.Since(start)

	return res
}

// Snapshot returns a copy of the live set as of the last mutation.
func (s *Store) Snapshot() Snapshot {
	return s.view.Load().clone()
}

// Version returns the tick number and content hash of the current snapshot
// without copying it.
func (s *Store) Version() (tick, hash uint64) {
	v := s.view.Load()
	return v.Tick, v.Hash
}

// PersistFailures counts sprite updates that never reached the durable store.
func (s *Store) PersistFailures() uint64 {
	return s.persistFailures.Load()
}

// commit applies mutate to the live set under mu and publishes the result.
// A panicking mutate releases mu and leaves the published view unchanged.
func (s *Store) commit(mutate func()) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mutate != nil {
		mutate()
	}
	return s.publishLocked()
}

// stepLocked moves every sprite into a fresh slice so a stepper that panics
// halfway leaves the live set as it was.
func (s *Store) stepLocked() {
	next := make([]models.Sprite, len(s.live))
	for i, sp := range s.live {
		next[i] = physics.StepSprite(s.stepper, sp, s.bounds)
	}
	s.live = next
	s.tick++
}

func (s *Store) publishLocked() *Snapshot {
	sprites := make([]models.Sprite, len(s.live))
	copy(sprites, s.live)

	snap := &Snapshot{
		Tick:    s.tick,
		Taken:   time.Now(),
		Hash:    hashSprites(sprites),
		Sprites: sprites,
	}
	s.view.Store(snap)
	return snap
}

// drawVelocity picks each component uniformly from [-maxSpeed, maxSpeed].
func (s *Store) drawVelocity() (dx, dy int) {
	if s.maxSpeed <= 0 {
		return 0, 0
	}

	s.randMu.Lock()
	defer s.randMu.Unlock()

	span := 2*s.maxSpeed + 1
	return s.rand.IntN(span) - s.maxSpeed, s.rand.IntN(span) - s.maxSpeed
}
