// Package middlewares wraps protocol handlers with cross-cutting behavior.
package middlewares

import "github.com/zeusync/spriteserver/internal/core/protocol"

// Middleware decorates a handler.
type Middleware func(next protocol.Handler) protocol.Handler

// Chain applies mws so that the first one is outermost.
func Chain(h protocol.Handler, mws ...Middleware) protocol.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
