package messaging

import (
	"context"
	"time"

	"github.com/smallbiznis/clinicbilling/internal/broker"
)

// OutboundMessage is the payload handed to the transport service.
type OutboundMessage struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Kind      string    `json:"kind"`
	InvoiceID string    `json:"invoice_id"`
	TenantID  string    `json:"tenant_id"`
	QueuedAt  time.Time `json:"queued_at"`
}

// AMQPGateway hands messages to the transport service over RabbitMQ. A
// confirmed publish counts as delivered.
type AMQPGateway struct {
	publisher  broker.Publisher
	exchange   string
	routingKey string
}

func NewAMQPGateway(publisher broker.Publisher, exchange, routingKey string) *AMQPGateway {
	return &AMQPGateway{publisher: publisher, exchange: exchange, routingKey: routingKey}
}

func (g *AMQPGateway) Send(ctx context.Context, recipient string, msg Message) (Result, error) {
	if recipient == "" {
		return Rejected(ErrMissingRecipient.Error(), true), nil
	}
	err := g.publisher.Publish(ctx, g.exchange, g.routingKey, OutboundMessage{
		Recipient: recipient,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Kind:      msg.Kind,
		InvoiceID: msg.InvoiceID,
		TenantID:  msg.TenantID,
		QueuedAt:  time.Now().UTC(),
	})
	if err != nil {
		return Result{}, err
	}
	return Delivered(), nil
}
