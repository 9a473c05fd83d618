// Package domain contains persistence models for clinic invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusPartial   InvoiceStatus = "PARTIAL"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusPartial, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// Closed reports whether the invoice no longer accrues days overdue.
func (s InvoiceStatus) Closed() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// EscalatableStatuses are the statuses the escalation engine evaluates.
func EscalatableStatuses() []InvoiceStatus {
	return []InvoiceStatus{InvoiceStatusPending, InvoiceStatusOverdue, InvoiceStatusPartial}
}

// Invoice is an amount owed by a tenant clinic to the platform operator.
type Invoice struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	InvoiceNumber string          `gorm:"type:text;not null;uniqueIndex:ux_invoices_number" json:"invoice_number"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Currency      string          `gorm:"type:text;not null" json:"currency"`
	DueDate       time.Time       `gorm:"not null;index" json:"due_date"`
	PaidDate      *time.Time      `json:"paid_date,omitempty"`
	Status        InvoiceStatus   `gorm:"type:text;not null;default:'PENDING';index" json:"status"`
	BlockingLevel BlockingLevel   `gorm:"type:text;not null;default:'NONE'" json:"blocking_level"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	Version       int64           `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// DaysOverdue returns whole calendar days elapsed since the due date. today
// must be a calendar date at UTC midnight.
func (i Invoice) DaysOverdue(today time.Time) int {
	if i.Status.Closed() {
		return 0
	}
	due := time.Date(i.DueDate.Year(), i.DueDate.Month(), i.DueDate.Day(), 0, 0, 0, 0, time.UTC)
	days := int(today.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Payment is an immutable record of money received against an invoice.
type Payment struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	TenantID  snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	Amount    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Method    string          `gorm:"type:text;not null" json:"method"`
	PaidAt    time.Time       `gorm:"not null" json:"paid_at"`
	Notes     string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "invoice_payments" }

// StatusForPayments derives the settlement status from the total received.
func StatusForPayments(amount, paid decimal.Decimal) (InvoiceStatus, bool) {
	switch {
	case paid.GreaterThanOrEqual(amount):
		return InvoiceStatusPaid, true
	case paid.IsPositive():
		return InvoiceStatusPartial, true
	default:
		return "", false
	}
}
