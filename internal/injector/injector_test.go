package injector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/server"
)

func testConfig(dbPath string) server.Config {
	cfg := server.DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HTTPAddr = ""
	cfg.QUICAddr = ""
	cfg.DatabasePath = dbPath
	cfg.DatabaseNoSync = true
	cfg.TickPeriod = 5 * time.Millisecond
	return cfg
}

func TestInitializeServerWithBolt(t *testing.T) {
	srv, cleanup, err := InitializeServer(testConfig(filepath.Join(t.TempDir(), "sprites.db")), log.Nop())
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, srv.Start(context.Background()))
	assert.True(t, srv.Healthy())
	assert.Empty(t, srv.Addrs().HTTP)
	require.NoError(t, srv.Stop(context.Background()))
}

func TestInitializeServerInMemory(t *testing.T) {
	srv, cleanup, err := InitializeServer(testConfig(""), log.Nop())
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
}

func TestInitializeServerBadConfig(t *testing.T) {
	cfg := testConfig("")
	cfg.Width = 1
	_, _, err := InitializeServer(cfg, log.Nop())
	assert.Error(t, err)
}

func TestProvideStoreBadPath(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing", "dir", "sprites.db"))
	_, _, err := ProvideStore(cfg, log.Nop())
	assert.Error(t, err)
}
