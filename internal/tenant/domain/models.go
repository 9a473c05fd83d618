package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is a clinic subscribed to the platform. Only the billing profile
// lives here.
type Tenant struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	BillingEmail string       `gorm:"type:text" json:"billing_email,omitempty"`
	BillingPhone string       `gorm:"type:text" json:"billing_phone,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Contact returns the default reminder recipient.
func (t Tenant) Contact() string {
	if t.BillingEmail != "" {
		return t.BillingEmail
	}
	return t.BillingPhone
}
