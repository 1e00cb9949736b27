package server

import (
	"github.com/zeusync/spriteserver/internal/core/events/bus"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
	"github.com/zeusync/spriteserver/internal/service"
)

// TickWatcher turns world.ticked events into snapshot pushes.
type TickWatcher struct {
	events bus.EventBus
	world  World
	logger log.Log
}

var _ protocol.Watcher = (*TickWatcher)(nil)

func NewTickWatcher(events bus.EventBus, w World, logger log.Log) *TickWatcher {
	return &TickWatcher{events: events, world: w, logger: logger.With(log.String("component", "watch"))}
}

func (t *TickWatcher) Watch(push func(protocol.SnapshotResult)) (func(), error) {
	sub, err := t.events.Subscribe(service.EventWorldTicked, func(bus.Event) error {
		push(SnapshotResult(t.world.Snapshot()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.logger.Debug("Watcher subscribed", log.String("subscription", sub.ID()))

	return func() {
		_ = t.events.Unsubscribe(sub)
		t.logger.Debug("Watcher unsubscribed", log.String("subscription", sub.ID()))
	}, nil
}

// Watchers returns the number of live bus subscriptions. In a running server
// every subscription belongs to a watcher.
func (t *TickWatcher) Watchers() uint64 {
	return t.events.GetMetrics().SubscribersActive
}
