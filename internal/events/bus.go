package events

import (
	"context"
	"log/slog"
	"sync"
)

// SubscriberFunc receives change notifications in-process.
type SubscriberFunc func(Event)

// Publisher is the optional external fan-out; satisfied by the AMQP
// client when a broker is configured.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus delivers events to in-process subscribers and, best effort, to an
// external publisher. Publish failures are logged and dropped; change
// notifications are advisory, never load-bearing.
type Bus struct {
	mu        sync.RWMutex
	subs      []SubscriberFunc
	publisher Publisher
}

func NewBus(publisher Publisher) *Bus {
	return &Bus{publisher: publisher}
}

// Subscribe registers an in-process subscriber. Subscribers run
// synchronously on the emitting goroutine and must be quick.
func (b *Bus) Subscribe(fn SubscriberFunc) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

// Emit delivers the event to all subscribers and the publisher.
func (b *Bus) Emit(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := make([]SubscriberFunc, len(b.subs))
	copy(subs, b.subs)
	publisher := b.publisher
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
	if publisher != nil {
		if err := publisher.Publish(ctx, e); err != nil {
			slog.WarnContext(ctx, "Failed to publish change event",
				"kind", e.Kind, "username", e.Username, "error", err)
		}
	}
}
