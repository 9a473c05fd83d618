// Package messaging delivers reminder messages to clinic contacts.
package messaging

import (
	"context"
	"errors"
)

// Message is a rendered reminder ready for delivery.
type Message struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Kind      string `json:"kind"`
	InvoiceID string `json:"invoice_id"`
	TenantID  string `json:"tenant_id"`
}

// Result is the provider's verdict. Delivered=false with an error code is a
// provider rejection; Permanent rejections are not worth retrying.
type Result struct {
	Delivered         bool
	ProviderErrorCode string
	Permanent         bool
}

// Gateway sends one message. A returned error is a transport failure
// (timeout, connection refused) and is always retryable.
type Gateway interface {
	Send(ctx context.Context, recipient string, msg Message) (Result, error)
}

var ErrMissingRecipient = errors.New("missing_recipient")

// Rejected builds a provider rejection result.
func Rejected(code string, permanent bool) Result {
	return Result{ProviderErrorCode: code, Permanent: permanent}
}

// Delivered is the success result.
func Delivered() Result {
	return Result{Delivered: true}
}
