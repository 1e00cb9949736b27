package server

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/spriteserver/internal/core/events/bus"
	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
	"github.com/zeusync/spriteserver/internal/core/storage/memory"
	"github.com/zeusync/spriteserver/internal/core/world"
	"github.com/zeusync/spriteserver/internal/service"
)

func newService(t *testing.T, durable *memory.Store) *service.Service {
	t.Helper()
	cfg := service.DefaultConfig()
	cfg.TickPeriod = 5 * time.Millisecond
	svc, err := service.New(cfg, durable, bus.New(), log.Nop())
	require.NoError(t, err)
	return svc
}

func loadedService(t *testing.T, durable *memory.Store) *service.Service {
	t.Helper()
	svc := newService(t, durable)
	_, err := svc.Load(context.Background())
	require.NoError(t, err)
	return svc
}

func call(t *testing.T, d *Dispatcher, method protocol.Method, params any) *protocol.Message {
	t.Helper()
	req, err := protocol.NewRequest(method, params)
	require.NoError(t, err)
	resp := d.Handle(context.Background(), req)
	require.NotNil(t, resp)
	assert.Equal(t, req.ID, resp.ID)
	assert.Equal(t, protocol.TypeResponse, resp.Type)
	return resp
}

func TestDispatcherDimensions(t *testing.T) {
	d := NewDispatcher(loadedService(t, memory.New()), log.Nop())

	var w, h int
	require.NoError(t, call(t, d, protocol.MethodGetWidth, nil).DecodeResult(&w))
	require.NoError(t, call(t, d, protocol.MethodGetHeight, nil).DecodeResult(&h))
	assert.Equal(t, 500, w)
	assert.Equal(t, 500, h)
}

func TestDispatcherCreateAndList(t *testing.T) {
	d := NewDispatcher(loadedService(t, memory.New()), log.Nop())

	resp := call(t, d, protocol.MethodCreateEntity, protocol.CreateParams{X: 40, Y: 50})
	require.Nil(t, resp.Error)

	var snap protocol.SnapshotResult
	require.NoError(t, call(t, d, protocol.MethodListEntities, nil).DecodeResult(&snap))
	require.Len(t, snap.Sprites, 1)
	assert.Equal(t, 40, snap.Sprites[0].X)
	assert.Equal(t, models.ColorRed, snap.Sprites[0].Color)
	assert.NotZero(t, snap.Hash)
}

func TestDispatcherErrors(t *testing.T) {
	durable := memory.New()
	d := NewDispatcher(loadedService(t, durable), log.Nop())

	resp := call(t, d, protocol.MethodCreateEntity, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInvalidRequest, resp.Error.Code)

	resp = call(t, d, protocol.MethodCreateEntity, protocol.CreateParams{X: 900, Y: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInvalidRequest, resp.Error.Code)

	durable.FailSave(errors.New("disk full"))
	resp = call(t, d, protocol.MethodCreateEntity, protocol.CreateParams{X: 1, Y: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeStore, resp.Error.Code)

	resp = call(t, d, protocol.Method("DeleteEntity"), nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeUnknownMethod, resp.Error.Code)
}

func TestDispatcherCreateBeforeLoad(t *testing.T) {
	d := NewDispatcher(newService(t, memory.New()), log.Nop())

	resp := call(t, d, protocol.MethodCreateEntity, protocol.CreateParams{X: 1, Y: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeStore, resp.Error.Code)
}

func TestErrorCode(t *testing.T) {
	persist := &world.PersistenceError{Op: "save", Err: errors.New("x")}
	assert.Equal(t, protocol.CodeStore, ErrorCode(persist))
	assert.Equal(t, protocol.CodeStore, ErrorCode(fmt.Errorf("wrapped: %w", persist)))
	assert.Equal(t, protocol.CodeInvalidRequest, ErrorCode(service.ErrInvalidPosition))
	assert.Equal(t, protocol.CodeStore, ErrorCode(service.ErrNotLoaded))
	assert.Equal(t, protocol.CodeTransport, ErrorCode(&world.PersistenceError{Op: "save", Err: context.DeadlineExceeded}))
	assert.Equal(t, protocol.CodeInternal, ErrorCode(errors.New("boom")))
}

func TestTickWatcherPushesAfterTicks(t *testing.T) {
	durable := memory.New()
	durable.Seed(models.Sprite{ID: 1, X: 10, Y: 10, DX: 1})
	svc := newService(t, durable)
	require.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop() }()

	w := NewTickWatcher(svc.Events(), svc, log.Nop())
	got := make(chan protocol.SnapshotResult, 64)
	cancel, err := w.Watch(func(s protocol.SnapshotResult) {
		select {
		case got <- s:
		default:
		}
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), w.Watchers())

	select {
	case s := <-got:
		require.Len(t, s.Sprites, 1)
		assert.NotZero(t, s.Tick)
	case <-time.After(5 * time.Second):
		t.Fatal("no push")
	}

	cancel()
	assert.Equal(t, uint64(0), w.Watchers())
}
