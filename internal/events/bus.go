// Package events fans out domain events to in-process handlers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Envelope wraps an event payload with identity and timing.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func NewEnvelope(eventType string, occurredAt time.Time, payload any) Envelope {
	return Envelope{
		ID:         ulid.Make().String(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	}
}

type Handler interface {
	Handle(ctx context.Context, event Envelope) error
}

type HandlerFunc func(ctx context.Context, event Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, event Envelope) error {
	return f(ctx, event)
}

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ctx context.Context, events ...Envelope)
}

// Bus dispatches synchronously. Handler errors and panics are logged and do
// not stop delivery to other handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	wildcard []Handler
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		log:      log.Named("events"),
	}
}

// Subscribe registers h for eventTypes, or for every event when none are given.
func (b *Bus) Subscribe(h Handler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		b.wildcard = append(b.wildcard, h)
		return
	}
	for _, t := range eventTypes {
		b.handlers[t] = append(b.handlers[t], h)
	}
}

func (b *Bus) Publish(ctx context.Context, events ...Envelope) {
	for _, event := range events {
		b.mu.RLock()
		handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.wildcard))
		handlers = append(handlers, b.handlers[event.Type]...)
		handlers = append(handlers, b.wildcard...)
		b.mu.RUnlock()

		for _, h := range handlers {
			if err := b.dispatch(ctx, h, event); err != nil {
				b.log.Error("handler failed to process event",
					zap.String("event_type", event.Type),
					zap.String("event_id", event.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, event Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panicked",
				zap.String("event_type", event.Type),
				zap.Any("panic", r),
			)
		}
	}()
	return h.Handle(ctx, event)
}

var _ Publisher = (*Bus)(nil)
