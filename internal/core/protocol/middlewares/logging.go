package middlewares

import (
	"context"
	"fmt"
	"time"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
)

// Logging logs every call at debug level and internal failures at error
// level.
func Logging(logger log.Log) Middleware {
	logger = logger.With(log.String("component", "rpc"))
	return func(next protocol.Handler) protocol.Handler {
		return protocol.HandlerFunc(func(ctx context.Context, req *protocol.Message) *protocol.Message {
			start := time.Now()
			resp := next.Handle(ctx, req)

			fields := []log.Field{
				log.String("method", string(req.Method)),
				log.String("request_id", req.ID.String()),
				log.Duration("duration", time.Since(start)),
			}
			switch {
			case resp.Error == nil:
				logger.Debug("Call handled", fields...)
			case resp.Error.Code == protocol.CodeInternal:
				logger.Error("Call failed", append(fields, log.String("error", resp.Error.Message))...)
			default:
				logger.Debug("Call rejected", append(fields,
					log.String("code", string(resp.Error.Code)),
					log.String("error", resp.Error.Message))...)
			}
			return resp
		})
	}
}

// Recover turns a panicking handler into an internal error response.
func Recover(logger log.Log) Middleware {
	return func(next protocol.Handler) protocol.Handler {
		return protocol.HandlerFunc(func(ctx context.Context, req *protocol.Message) (resp *protocol.Message) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Handler panicked",
						log.String("method", string(req.Method)),
						log.Any("panic", r))
					resp = protocol.NewError(req, protocol.CodeInternal, fmt.Sprintf("panic: %v", r))
				}
			}()
			return next.Handle(ctx, req)
		})
	}
}
