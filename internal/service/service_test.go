package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/spriteserver/internal/core/events/bus"
	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/storage/memory"
	"github.com/zeusync/spriteserver/internal/core/world"
)

func newTestService(t *testing.T, durable *memory.Store) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TickPeriod = 5 * time.Millisecond
	svc, err := New(cfg, durable, bus.New(), log.Nop())
	require.NoError(t, err)
	return svc
}

func newLoadedService(t *testing.T, durable *memory.Store) *Service {
	t.Helper()
	svc := newTestService(t, durable)
	_, err := svc.Load(context.Background())
	require.NoError(t, err)
	return svc
}

func TestService_Dimensions(t *testing.T) {
	svc := newTestService(t, memory.New())
	w, h := svc.Dimensions()
	assert.Equal(t, 500, w)
	assert.Equal(t, 500, h)
}

func TestService_NewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.World.Bounds.Width = 0
	_, err := New(cfg, memory.New(), nil, log.Nop())
	require.ErrorIs(t, err, models.ErrInvalidBounds)

	cfg = DefaultConfig()
	cfg.World.MaxSpeed = -1
	_, err = New(cfg, memory.New(), nil, log.Nop())
	require.Error(t, err)
}

func TestService_CreateAndList(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, memory.New())

	require.NoError(t, svc.Create(ctx, 10, 20))
	require.NoError(t, svc.Create(ctx, 30, 40))

	sprites := svc.List()
	require.Len(t, sprites, 2)
	assert.Equal(t, 10, sprites[0].X)
	assert.Equal(t, 20, sprites[0].Y)
	assert.Equal(t, models.ColorRed, sprites[0].Color)
	assert.Equal(t, models.ColorBlue, sprites[1].Color)
	assert.NotEqual(t, sprites[0].ID, sprites[1].ID)
}

func TestService_CreateOutsideWindow(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, memory.New())

	for _, p := range [][2]int{{-1, 0}, {0, -1}, {491, 0}, {0, 491}, {499, 499}} {
		err := svc.Create(ctx, p[0], p[1])
		assert.ErrorIs(t, err, ErrInvalidPosition, "position %v", p)
	}
	assert.Empty(t, svc.List())

	require.NoError(t, svc.Create(ctx, 490, 490))
	sprites := svc.List()
	require.Len(t, sprites, 1)
	assert.True(t, sprites[0].Contains(svc.bounds))
}

func TestService_CreateBeforeLoadIsRefused(t *testing.T) {
	ctx := context.Background()
	durable := memory.New()
	durable.Seed(models.Sprite{ID: 7, X: 10, Y: 10, DX: 1, DY: 1})
	svc := newTestService(t, durable)

	require.ErrorIs(t, svc.Create(ctx, 10, 10), ErrNotLoaded)
	assert.Empty(t, svc.List())

	require.NoError(t, svc.Start(ctx))
	defer func() { _ = svc.Stop() }()

	sprites := svc.List()
	require.Len(t, sprites, 1)
	assert.Equal(t, models.SpriteID(7), sprites[0].ID)
	require.NoError(t, svc.Create(ctx, 10, 10))
}

func TestService_LoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	durable := memory.New()
	durable.Seed(models.Sprite{ID: 1, X: 10, Y: 10})
	svc := newTestService(t, durable)

	n, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, svc.Create(ctx, 20, 20))

	n, err = svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Stop())
	assert.Len(t, svc.List(), 2)
}

func TestService_CreateStoreFailure(t *testing.T) {
	durable := memory.New()
	boom := errors.New("disk full")
	durable.FailSave(boom)
	svc := newLoadedService(t, durable)

	err := svc.Create(context.Background(), 1, 1)
	require.ErrorIs(t, err, boom)
	assert.True(t, world.IsPersistence(err))
	assert.Empty(t, svc.List())
}

func TestService_PublishesCreated(t *testing.T) {
	svc := newLoadedService(t, memory.New())

	var got []models.Sprite
	_, err := svc.Events().Subscribe(EventSpriteCreated, func(e bus.Event) error {
		got = append(got, e.Data().(models.Sprite))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, svc.Create(context.Background(), 5, 6))
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].X)
	assert.NotZero(t, got[0].ID)
}

func TestService_StartRestoresAndTicks(t *testing.T) {
	durable := memory.New()
	durable.Seed(models.Sprite{ID: 3, X: 100, Y: 100, DX: 1, DY: 1, Color: models.ColorGreen})
	svc := newTestService(t, durable)

	ticked := make(chan uint64, 16)
	_, err := svc.Events().Subscribe(EventWorldTicked, func(e bus.Event) error {
		select {
		case ticked <- e.Data().(world.TickResult).Tick:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	require.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick observed")
	}
	require.NoError(t, svc.Stop())
	require.ErrorIs(t, svc.Stop(), ErrNotStarted)

	sprites := svc.List()
	require.Len(t, sprites, 1)
	assert.Equal(t, models.SpriteID(3), sprites[0].ID)
	assert.Greater(t, sprites[0].X, 100)

	stats := svc.Stats()
	assert.Equal(t, 1, stats.Sprites)
	assert.NotZero(t, stats.Tick)
	assert.False(t, stats.Loop.Running)

	// Restart keeps the live set instead of loading twice.
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())
	assert.Len(t, svc.List(), 1)
}

func TestService_StartUnreachableStore(t *testing.T) {
	durable := memory.New()
	require.NoError(t, durable.Close())
	svc := newTestService(t, durable)

	err := svc.Start(context.Background())
	require.ErrorIs(t, err, ErrStoreUnreachable)
	assert.True(t, world.IsPersistence(err))
	assert.False(t, svc.Stats().Loop.Running)
	assert.ErrorIs(t, svc.Create(context.Background(), 1, 1), ErrNotLoaded)
}

func TestService_ManualTick(t *testing.T) {
	durable := memory.New()
	durable.Seed(models.Sprite{ID: 1, X: 10, Y: 10, DX: 2, DY: -1})
	svc := newTestService(t, durable)
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())

	before := svc.List()[0]
	res := svc.Tick(context.Background())
	require.NoError(t, res.Err)
	after := svc.List()[0]
	assert.Equal(t, before.X+before.DX, after.X)
	assert.Equal(t, before.Y+before.DY, after.Y)
}

func TestService_ConcurrentCreateWhileRunning(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memory.New())
	require.NoError(t, svc.Start(ctx))
	defer func() { _ = svc.Stop() }()

	const workers, each = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				assert.NoError(t, svc.Create(ctx, 250, 250))
				_ = svc.List()
			}
		}()
	}
	wg.Wait()

	sprites := svc.List()
	require.Len(t, sprites, workers*each)

	counts := map[models.Color]int{}
	seen := map[models.SpriteID]bool{}
	for _, sp := range sprites {
		counts[sp.Color]++
		require.False(t, seen[sp.ID])
		seen[sp.ID] = true
	}
	assert.Equal(t, 67, counts[models.ColorRed])
	assert.Equal(t, 67, counts[models.ColorBlue])
	assert.Equal(t, 66, counts[models.ColorGreen])
}
