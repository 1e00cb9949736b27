package server

import (
	"context"
	"errors"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
	"github.com/zeusync/spriteserver/internal/core/world"
	"github.com/zeusync/spriteserver/internal/service"
)

// World is the part of the service the transports reach.
type World interface {
	Dimensions() (width, height int)
	Create(ctx context.Context, x, y int) error
	Snapshot() world.Snapshot
	Version() (tick, hash uint64)
}

var _ World = (*service.Service)(nil)

// Dispatcher maps protocol requests onto World calls.
type Dispatcher struct {
	world  World
	logger log.Log
}

var _ protocol.Handler = (*Dispatcher)(nil)

func NewDispatcher(w World, logger log.Log) *Dispatcher {
	return &Dispatcher{world: w, logger: logger.With(log.String("component", "dispatcher"))}
}

func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Message) *protocol.Message {
	switch req.Method {
	case protocol.MethodGetWidth:
		w, _ := d.world.Dimensions()
		return protocol.NewResult(req, w)

	case protocol.MethodGetHeight:
		_, h := d.world.Dimensions()
		return protocol.NewResult(req, h)

	case protocol.MethodCreateEntity:
		var p protocol.CreateParams
		if err := req.DecodeParams(&p); err != nil {
			return protocol.NewError(req, protocol.CodeInvalidRequest, err.Error())
		}
		if err := d.world.Create(ctx, p.X, p.Y); err != nil {
			code := ErrorCode(err)
			d.logger.Warn("CreateEntity failed",
				log.String("request_id", req.ID.String()),
				log.String("code", string(code)),
				log.Error(err))
			return protocol.NewError(req, code, err.Error())
		}
		return protocol.NewResult(req, nil)

	case protocol.MethodListEntities:
		return protocol.NewResult(req, SnapshotResult(d.world.Snapshot()))

	default:
		return protocol.NewError(req, protocol.CodeUnknownMethod, string(req.Method))
	}
}

// ErrorCode classifies a service error for the wire.
func ErrorCode(err error) protocol.Code {
	switch {
	case errors.Is(err, service.ErrInvalidPosition), errors.Is(err, protocol.ErrInvalidParams):
		return protocol.CodeInvalidRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return protocol.CodeTransport
	case world.IsPersistence(err), errors.Is(err, service.ErrNotLoaded):
		return protocol.CodeStore
	default:
		return protocol.CodeInternal
	}
}

func SnapshotResult(snap world.Snapshot) protocol.SnapshotResult {
	return protocol.SnapshotResult{Tick: snap.Tick, Hash: snap.Hash, Sprites: snap.Sprites}
}
