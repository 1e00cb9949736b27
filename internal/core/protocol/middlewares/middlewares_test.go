package middlewares

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
)

func request(t *testing.T, method protocol.Method) *protocol.Message {
	t.Helper()
	req, err := protocol.NewRequest(method, nil)
	require.NoError(t, err)
	return req
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next protocol.Handler) protocol.Handler {
			return protocol.HandlerFunc(func(ctx context.Context, req *protocol.Message) *protocol.Message {
				order = append(order, name)
				return next.Handle(ctx, req)
			})
		}
	}
	h := Chain(protocol.HandlerFunc(func(_ context.Context, req *protocol.Message) *protocol.Message {
		order = append(order, "handler")
		return protocol.NewResult(req, nil)
	}), tag("outer"), tag("inner"))

	h.Handle(context.Background(), request(t, protocol.MethodGetWidth))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRecover(t *testing.T) {
	h := Chain(protocol.HandlerFunc(func(context.Context, *protocol.Message) *protocol.Message {
		panic("boom")
	}), Recover(log.Nop()), Logging(log.Nop()))

	req := request(t, protocol.MethodListEntities)
	resp := h.Handle(context.Background(), req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInternal, resp.Error.Code)
	assert.Equal(t, req.ID, resp.ID)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	h := Chain(protocol.HandlerFunc(func(_ context.Context, req *protocol.Message) *protocol.Message {
		if req.Method == protocol.MethodCreateEntity {
			return protocol.NewError(req, protocol.CodeStore, "nope")
		}
		return protocol.NewResult(req, 1)
	}), m.Middleware)

	ctx := context.Background()
	h.Handle(ctx, request(t, protocol.MethodGetWidth))
	h.Handle(ctx, request(t, protocol.MethodGetWidth))
	h.Handle(ctx, request(t, protocol.MethodCreateEntity))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap[protocol.MethodGetWidth].Count)
	assert.Equal(t, int64(0), snap[protocol.MethodGetWidth].Errors)
	assert.Equal(t, int64(1), snap[protocol.MethodCreateEntity].Errors)
	assert.False(t, snap[protocol.MethodGetWidth].LastCall.IsZero())
	_, ok := snap[protocol.MethodListEntities]
	assert.False(t, ok)
}
