package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/spriteserver/internal/core/events/bus"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/storage"
	"github.com/zeusync/spriteserver/internal/core/storage/bolt"
	"github.com/zeusync/spriteserver/internal/core/storage/memory"
	"github.com/zeusync/spriteserver/internal/server"
	"github.com/zeusync/spriteserver/internal/service"
)

var ServerSet = wire.NewSet(
	ProvideStore,
	ProvideEventBus,
	ProvideServiceConfig,
	service.New,
	server.New,
)

// ProvideStore opens the bbolt file named by the config, or an in-memory
// store when no path is set.
func ProvideStore(cfg server.Config, logger log.Log) (storage.Store, func(), error) {
	if cfg.DatabasePath == "" {
		logger.Warn("No database path configured, sprites will not survive a restart")
		s := memory.New()
		return s, func() { _ = s.Close() }, nil
	}

	s, err := bolt.Open(cfg.DatabasePath, bolt.Options{
		OpenTimeout: cfg.DatabaseTimeout,
		NoSync:      cfg.DatabaseNoSync,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if cErr := s.Close(); cErr != nil {
			logger.Error("Failed to close database", log.Error(cErr))
		}
	}, nil
}

func ProvideEventBus() bus.EventBus {
	return bus.New()
}

func ProvideServiceConfig(cfg server.Config) service.Config {
	return cfg.ServiceConfig()
}
