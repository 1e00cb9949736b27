package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
	"github.com/zeusync/spriteserver/internal/core/protocol/quic"
	"github.com/zeusync/spriteserver/internal/core/protocol/websocket"
	"github.com/zeusync/spriteserver/internal/core/storage/memory"
)

func testConfig() Config {
	cfg := DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.QUICAddr = "127.0.0.1:0"
	cfg.DatabasePath = ""
	cfg.TickPeriod = 5 * time.Millisecond
	return cfg
}

func startTestServer(t *testing.T, durable *memory.Store) *Server {
	t.Helper()
	cfg := testConfig()
	svc := newService(t, durable)
	srv, err := New(cfg, svc, log.Nop())
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		if srv.Healthy() {
			_ = srv.Stop(context.Background())
		}
	})
	return srv
}

func TestServerEndToEnd(t *testing.T) {
	durable := memory.New()
	srv := startTestServer(t, durable)
	addrs := srv.Addrs()
	require.NotEmpty(t, addrs.RPC)
	require.NotEmpty(t, addrs.HTTP)
	require.NotEmpty(t, addrs.QUIC)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws, err := websocket.Dial(ctx, "ws://"+addrs.RPC+RPCPath, websocket.DefaultConfig(), log.Nop())
	require.NoError(t, err)
	defer ws.Close()

	var width int
	require.NoError(t, ws.Call(ctx, protocol.MethodGetWidth, nil, &width))
	assert.Equal(t, 500, width)
	require.NoError(t, ws.Call(ctx, protocol.MethodCreateEntity, protocol.CreateParams{X: 100, Y: 100}, nil))

	qc, err := quic.Dial(ctx, addrs.QUIC, quic.ClientTLS(true), quic.DefaultConfig(), log.Nop())
	require.NoError(t, err)
	defer qc.Close()

	require.NoError(t, qc.Call(ctx, protocol.MethodCreateEntity, protocol.CreateParams{X: 200, Y: 200}, nil))
	var snap protocol.SnapshotResult
	require.NoError(t, qc.Call(ctx, protocol.MethodListEntities, nil, &snap))
	require.Len(t, snap.Sprites, 2)
	assert.Equal(t, models.ColorRed, snap.Sprites[0].Color)
	assert.Equal(t, models.ColorBlue, snap.Sprites[1].Color)

	pushes := make(chan protocol.SnapshotResult, 16)
	require.NoError(t, ws.Watch(ctx, func(s protocol.SnapshotResult) {
		select {
		case pushes <- s:
		default:
		}
	}))
	select {
	case s := <-pushes:
		assert.Len(t, s.Sprites, 2)
	case <-ctx.Done():
		t.Fatal("no push received")
	}

	resp, err := http.Get("http://" + addrs.HTTP + "/stats")
	require.NoError(t, err)
	var st Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, 2, st.Service.Sprites)
	assert.True(t, st.Service.Loop.Running)
	assert.Equal(t, 1, st.Connections)
	assert.Equal(t, int64(1), st.Calls[protocol.MethodGetWidth].Count)
	assert.Equal(t, int64(2), st.Calls[protocol.MethodCreateEntity].Count)

	require.NoError(t, srv.Stop(context.Background()))
	assert.False(t, srv.Healthy())

	_, saved := durable.Get(snap.Sprites[0].ID)
	assert.True(t, saved)
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)
	assert.ErrorIs(t, srv.Stop(context.Background()), ErrServerNotRunning)
	assert.NoError(t, srv.Wait())
}

func TestServerStartFailsOnUnreachableStore(t *testing.T) {
	durable := memory.New()
	require.NoError(t, durable.Close())

	svc := newService(t, durable)
	srv, err := New(testConfig(), svc, log.Nop())
	require.NoError(t, err)

	require.Error(t, srv.Start(context.Background()))
	assert.False(t, srv.Healthy())
}

func TestServerStartFailsOnBusyPort(t *testing.T) {
	first := startTestServer(t, memory.New())

	cfg := testConfig()
	cfg.ListenAddr = first.Addrs().RPC
	svc := newService(t, memory.New())
	srv, err := New(cfg, svc, log.Nop())
	require.NoError(t, err)

	err = srv.Start(context.Background())
	require.ErrorIs(t, err, ErrListenerFailed)
	assert.False(t, svc.Stats().Loop.Running)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TickPeriod = 0
	_, err := New(cfg, newService(t, memory.New()), log.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
