package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ReminderStatus string

const (
	ReminderStatusPending ReminderStatus = "PENDING"
	ReminderStatusSent    ReminderStatus = "SENT"
	ReminderStatusFailed  ReminderStatus = "FAILED"
)

func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderStatusPending, ReminderStatusSent, ReminderStatusFailed:
		return true
	default:
		return false
	}
}

// Reminder is one dispatched (or attempted) notification. Status moves
// PENDING to SENT or FAILED exactly once.
type Reminder struct {
	ID                     snowflake.ID                `gorm:"primaryKey" json:"id"`
	InvoiceID              snowflake.ID                `gorm:"not null;uniqueIndex:ux_reminders_invoice_day,priority:1" json:"invoice_id"`
	TenantID               snowflake.ID                `gorm:"not null;index" json:"tenant_id"`
	Kind                   string                      `gorm:"type:text;not null" json:"kind"`
	Subject                string                      `gorm:"type:text" json:"subject"`
	Message                string                      `gorm:"type:text;not null" json:"message"`
	Recipient              string                      `gorm:"type:text;not null" json:"recipient"`
	Status                 ReminderStatus              `gorm:"type:text;not null;index" json:"status"`
	Attempts               int                         `gorm:"not null;default:0" json:"attempts"`
	ProviderErrorCode      string                      `gorm:"type:text" json:"provider_error_code,omitempty"`
	UnresolvedPlaceholders datatypes.JSONSlice[string] `gorm:"type:json" json:"unresolved_placeholders,omitempty"`
	DispatchDay            time.Time                   `gorm:"not null;uniqueIndex:ux_reminders_invoice_day,priority:2" json:"dispatch_day"`
	CreatedAt              time.Time                   `gorm:"not null" json:"created_at"`
	CompletedAt            *time.Time                  `json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (Reminder) TableName() string { return "reminders" }
