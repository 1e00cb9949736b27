//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/server"
)

// InitializeServer builds a server and everything behind it. The cleanup
// closes the durable store and must run after the server is stopped.
func InitializeServer(cfg server.Config, logger log.Log) (*server.Server, func(), error) {
	wire.Build(ServerSet)
	return nil, nil, nil
}
