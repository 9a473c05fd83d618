package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const EventLevelChanged = "billing.invoice.level_changed"

// LevelChanged is published after a blocking level transition commits.
type LevelChanged struct {
	InvoiceID     snowflake.ID  `json:"invoice_id"`
	TenantID      snowflake.ID  `json:"tenant_id"`
	InvoiceNumber string        `json:"invoice_number"`
	PreviousLevel BlockingLevel `json:"previous_level"`
	NewLevel      BlockingLevel `json:"new_level"`
	DaysOverdue   int           `json:"days_overdue"`
	Reason        string        `json:"reason"`
	AppliedBy     string        `json:"applied_by"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// Escalated reports whether the transition moved toward lockout.
func (e LevelChanged) Escalated() bool {
	return e.NewLevel.MoreSevereThan(e.PreviousLevel)
}
