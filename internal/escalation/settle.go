package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EscalateRequest struct {
	Level  string `json:"level"`
	Reason string `json:"reason"`
}

var ErrInvalidLevel = errors.New("invalid_blocking_level")

// Settle closes invoice as PAID or CANCELLED inside tx and resets its level
// to NONE. This is the only downward transition. A history entry is written
// only when the level actually changes; the returned change must be
// published after tx commits.
func (e *Engine) Settle(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, status invoicedomain.InvoiceStatus, reason, actor string) (*invoicedomain.LevelChanged, error) {
	if !status.Closed() {
		return nil, invoicedomain.ErrInvalidTransition
	}

	previous := invoice.BlockingLevel
	expected := invoice.Version
	now := e.clock.Now().UTC()

	invoice.Status = status
	invoice.BlockingLevel = invoicedomain.BlockingLevelNone
	invoice.UpdatedAt = now
	if err := e.invoices.UpdateState(ctx, tx, invoice, expected); err != nil {
		return nil, err
	}

	if previous == invoicedomain.BlockingLevelNone {
		return nil, nil
	}

	actor = normalizeActor(actor)
	if err := e.history.Append(ctx, tx, &auditdomain.BlockingHistoryEntry{
		InvoiceID:     invoice.ID,
		TenantID:      invoice.TenantID,
		PreviousLevel: previous,
		NewLevel:      invoicedomain.BlockingLevelNone,
		Reason:        reason,
		AppliedBy:     actor,
		CreatedAt:     now,
	}); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	return &invoicedomain.LevelChanged{
		InvoiceID:     invoice.ID,
		TenantID:      invoice.TenantID,
		InvoiceNumber: invoice.InvoiceNumber,
		PreviousLevel: previous,
		NewLevel:      invoicedomain.BlockingLevelNone,
		Reason:        reason,
		AppliedBy:     actor,
		OccurredAt:    now,
	}, nil
}

// Escalate raises an invoice to an operator-chosen level. Only upward moves
// on open invoices are accepted.
func (e *Engine) Escalate(ctx context.Context, invoiceID string, req EscalateRequest, actor string) (invoicedomain.Invoice, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	level := invoicedomain.BlockingLevel(strings.ToUpper(strings.TrimSpace(req.Level)))
	if !level.Valid() {
		return invoicedomain.Invoice{}, ErrInvalidLevel
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual escalation"
	}
	actor = normalizeActor(actor)

	var (
		result invoicedomain.Invoice
		change invoicedomain.LevelChanged
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := e.invoices.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status.Closed() {
			return invoicedomain.ErrInvoiceClosed
		}
		if !level.MoreSevereThan(invoice.BlockingLevel) {
			return invoicedomain.ErrInvalidTransition
		}

		now := e.clock.Now().UTC()
		previous := invoice.BlockingLevel
		expected := invoice.Version
		invoice.BlockingLevel = level
		invoice.UpdatedAt = now
		if err := e.invoices.UpdateState(ctx, tx, invoice, expected); err != nil {
			return err
		}

		days := invoice.DaysOverdue(e.Today())
		if err := e.history.Append(ctx, tx, &auditdomain.BlockingHistoryEntry{
			InvoiceID:     invoice.ID,
			TenantID:      invoice.TenantID,
			PreviousLevel: previous,
			NewLevel:      level,
			Reason:        reason,
			AppliedBy:     actor,
			Metadata:      map[string]any{"days_overdue": days, "manual": true},
			CreatedAt:     now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		result = *invoice
		change = invoicedomain.LevelChanged{
			InvoiceID:     invoice.ID,
			TenantID:      invoice.TenantID,
			InvoiceNumber: invoice.InvoiceNumber,
			PreviousLevel: previous,
			NewLevel:      level,
			DaysOverdue:   days,
			Reason:        reason,
			AppliedBy:     actor,
			OccurredAt:    now,
		}
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	e.log.Info("escalation.manual",
		zap.String("invoice_id", result.ID.String()),
		zap.String("previous_level", string(change.PreviousLevel)),
		zap.String("new_level", string(change.NewLevel)),
		zap.String("actor", actor),
	)
	e.PublishLevelChanged(ctx, change)
	return result, nil
}

func normalizeActor(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return auditdomain.AppliedBySystem
	}
	return actor
}
