package messaging

import (
	"context"

	"github.com/smallbiznis/clinicbilling/internal/audit/masking"
	"go.uber.org/zap"
)

// LogGateway writes messages to the log instead of sending them. Used in
// development.
type LogGateway struct {
	log *zap.Logger
}

func NewLogGateway(log *zap.Logger) *LogGateway {
	return &LogGateway{log: log.Named("messaging.log")}
}

func (g *LogGateway) Send(ctx context.Context, recipient string, msg Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if recipient == "" {
		return Rejected(ErrMissingRecipient.Error(), true), nil
	}
	g.log.Info("reminder message",
		zap.String("recipient", masking.MaskContact(recipient)),
		zap.String("invoice_id", msg.InvoiceID),
		zap.String("kind", msg.Kind),
		zap.String("subject", msg.Subject),
		zap.Int("body_length", len(msg.Body)),
	)
	return Delivered(), nil
}
