// Package domain defines the append-only blocking history.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"gorm.io/datatypes"
)

const AppliedBySystem = "SYSTEM"

// BlockingHistoryEntry records one blocking level transition of an invoice.
type BlockingHistoryEntry struct {
	ID            snowflake.ID                `gorm:"primaryKey" json:"id"`
	InvoiceID     snowflake.ID                `gorm:"not null;index:ix_blocking_history_invoice,priority:1" json:"invoice_id"`
	TenantID      snowflake.ID                `gorm:"not null;index" json:"tenant_id"`
	PreviousLevel invoicedomain.BlockingLevel `gorm:"type:text;not null" json:"previous_level"`
	NewLevel      invoicedomain.BlockingLevel `gorm:"type:text;not null" json:"new_level"`
	Reason        string                      `gorm:"type:text;not null" json:"reason"`
	AppliedBy     string                      `gorm:"type:text;not null" json:"applied_by"`
	Metadata      datatypes.JSONMap           `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time                   `gorm:"not null;index:ix_blocking_history_invoice,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (BlockingHistoryEntry) TableName() string { return "blocking_history" }
