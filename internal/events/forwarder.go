package events

import (
	"context"

	"github.com/smallbiznis/clinicbilling/internal/broker"
)

// Forwarder relays every bus event to a RabbitMQ exchange, routed by type.
type Forwarder struct {
	publisher broker.Publisher
	exchange  string
}

func NewForwarder(publisher broker.Publisher, exchange string) *Forwarder {
	return &Forwarder{publisher: publisher, exchange: exchange}
}

func (f *Forwarder) Handle(ctx context.Context, event Envelope) error {
	return f.publisher.Publish(ctx, f.exchange, event.Type, event)
}
