package protocol

import (
	"context"
)

// Handler answers one request. It must always return a response, never nil.
type Handler interface {
	Handle(ctx context.Context, req *Message) *Message
}

type HandlerFunc func(ctx context.Context, req *Message) *Message

func (f HandlerFunc) Handle(ctx context.Context, req *Message) *Message {
	return f(ctx, req)
}

// Watcher streams snapshots to a subscriber after every tick until the
// returned cancel is called.
type Watcher interface {
	Watch(push func(SnapshotResult)) (cancel func(), err error)
}
