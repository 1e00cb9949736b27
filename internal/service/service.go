// Package service is the remote-callable face of the sprite world. It owns
// the color sequencer, the live set and the simulation loop.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/spriteserver/internal/core/events/bus"
	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/storage"
	"github.com/zeusync/spriteserver/internal/core/world"
)

// Event types published on the bus.
const (
	EventSpriteCreated = "sprite.created"
	EventWorldTicked   = "world.ticked"

	eventSource = "service"
)

type Config struct {
	World       world.Config
	TickPeriod  time.Duration
	TickTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		World:       world.DefaultConfig(),
		TickPeriod:  world.DefaultTickPeriod,
		TickTimeout: world.DefaultTickTimeout,
	}
}

// Stats summarizes the running world.
type Stats struct {
	Sprites int             `json:"sprites"`
	Tick    uint64          `json:"tick"`
	Loop    world.LoopStats `json:"loop"`
}

type Service struct {
	bounds models.Bounds
	store  *world.Store
	loop   *world.Loop
	events bus.EventBus
	logger log.Log

	mu      sync.Mutex
	started bool
	loaded  atomic.Bool
}

func New(cfg Config, durable storage.Store, events bus.EventBus, logger log.Log) (*Service, error) {
	if err := cfg.World.Bounds.Validate(); err != nil {
		return nil, err
	}
	if cfg.World.MaxSpeed < 0 {
		return nil, fmt.Errorf("max speed %d must not be negative", cfg.World.MaxSpeed)
	}
	if events == nil {
		events = bus.New()
	}

	logger = logger.With(log.String("component", "service"))

	s := &Service{
		bounds: cfg.World.Bounds,
		store:  world.NewStore(cfg.World, durable, world.NewColorSequencer(), logger),
		events: events,
		logger: logger,
	}
	s.loop = world.NewLoop(s.store, world.LoopConfig{
		Period:  cfg.TickPeriod,
		Timeout: cfg.TickTimeout,
		OnTick:  s.onTick,
	}, logger)

	return s, nil
}

// Start reloads persisted sprites, unless Load already did, and launches the
// simulation loop. A durable store that cannot be read is fatal.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	n, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if err := s.loop.Start(); err != nil {
		return err
	}
	s.started = true

	s.logger.Info("Service started",
		log.Int("width", s.bounds.Width),
		log.Int("height", s.bounds.Height),
		log.Int("live_sprites", n))
	return nil
}

// Load seeds the live set from the durable store. Only the first successful
// call reads the store; Create is refused until then.
func (s *Service) Load(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Service) loadLocked(ctx context.Context) (int, error) {
	if s.loaded.Load() {
		return s.store.Snapshot().Len(), nil
	}

	n, err := s.store.Load(ctx)
	if err != nil {
		if world.IsPersistence(err) {
			return 0, fmt.Errorf("%w: %w", ErrStoreUnreachable, err)
		}
		return 0, err
	}
	s.loaded.Store(true)
	return n, nil
}

// Stop halts the simulation loop. The live set stays readable.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	s.started = false
	return s.loop.Stop()
}

func (s *Service) Dimensions() (width, height int) {
	return s.bounds.Width, s.bounds.Height
}

// Create adds a sprite at (x, y). The color is always chosen by the
// sequencer. The whole sprite must fit in the window.
func (s *Service) Create(ctx context.Context, x, y int) error {
	if !s.loaded.Load() {
		return ErrNotLoaded
	}
	if x < 0 || y < 0 || x > s.bounds.MaxX() || y > s.bounds.MaxY() {
		return fmt.Errorf("%w: (%d, %d) not in [0,%d]x[0,%d]", ErrInvalidPosition, x, y, s.bounds.MaxX(), s.bounds.MaxY())
	}

	sprite, err := s.store.Add(ctx, x, y)
	if err != nil {
		return err
	}

	if pErr := s.events.Publish(bus.NewEvent(EventSpriteCreated, eventSource, sprite)); pErr != nil {
		s.logger.Warn("Sprite created handler failed", log.Error(pErr))
	}
	return nil
}

// List returns every live sprite as of one instant.
func (s *Service) List() []models.Sprite {
	return s.store.Snapshot().Sprites
}

// Snapshot returns the live set together with its tick and hash.
func (s *Service) Snapshot() world.Snapshot {
	return s.store.Snapshot()
}

// Version returns the current tick and content hash without copying sprites.
func (s *Service) Version() (tick, hash uint64) {
	return s.store.Version()
}

// Tick runs one simulation step outside the loop.
func (s *Service) Tick(ctx context.Context) world.TickResult {
	res := s.store.Tick(ctx)
	s.onTick(res)
	return res
}

func (s *Service) Events() bus.EventBus {
	return s.events
}

func (s *Service) Stats() Stats {
	tick, _ := s.store.Version()
	return Stats{
		Sprites: s.store.Snapshot().Len(),
		Tick:    tick,
		Loop:    s.loop.Stats(),
	}
}

func (s *Service) onTick(res world.TickResult) {
	if err := s.events.Publish(bus.NewEvent(EventWorldTicked, eventSource, res)); err != nil {
		s.logger.Warn("Tick handler failed", log.Uint64("tick", res.Tick), log.Error(err))
	}
}
