package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus keyed by event type.
//
// Publish calls handlers synchronously in the caller goroutine and joins
// their errors. Handlers should be quick or hand work off; the sprite server
// publishes from the simulation loop.
type EventBus interface {
	// Publish delivers the event to all active subscribers of event.Type().
	Publish(event Event) error
	// Subscribe registers handler for eventType.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels sub. Nil is a no-op.
	Unsubscribe(sub Subscription) error
	// GetMetrics returns accumulated counters.
	GetMetrics() EventBusMetrics
}

// Event is an immutable message. Implementations should treat values as
// read-only once published.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

type (
	// EventHandler is invoked once per delivered event.
	EventHandler func(event Event) error
)

// Subscription is a registered handler. Cancel is idempotent.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	Cancel() error
}

type EventBusMetrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	SubscribersActive uint64
}
