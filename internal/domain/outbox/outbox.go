// Package outbox defines how committed domain events leave a transaction.
// Events are published only after the commit that produced them.
package outbox

import "context"

type Event interface {
	EventName() string
}

// Keyed events name the aggregate they describe. Relays partition on it so
// events of one order or medicine stay in commit order.
type Keyed interface {
	AggregateID() int64
}

type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers a handler for one event name. A name may have many
// handlers; each delivery runs them concurrently.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
