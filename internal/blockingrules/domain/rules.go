package domain

import (
	"time"

	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
)

// GlobalRulesID is the primary key of the single platform-wide rule set.
const GlobalRulesID int64 = 1

// BlockingRules maps days overdue to a blocking level.
type BlockingRules struct {
	ID              int64     `gorm:"primaryKey;autoIncrement:false" json:"-"`
	NoticeDays      int       `gorm:"not null" json:"notice_days" validate:"gte=0"`
	BannerDays      int       `gorm:"not null" json:"banner_days" validate:"gte=0,gtfield=NoticeDays"`
	RestrictionDays int       `gorm:"not null" json:"restriction_days" validate:"gte=0,gtfield=BannerDays"`
	LockoutDays     int       `gorm:"not null" json:"lockout_days" validate:"gte=0,gtfield=RestrictionDays"`
	Enabled         bool      `gorm:"not null" json:"enabled"`
	UpdatedBy       string    `gorm:"type:text;not null" json:"updated_by"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (BlockingRules) TableName() string { return "blocking_rules" }

// LevelFor resolves the level for daysOverdue, checking the most severe
// threshold first.
func (r BlockingRules) LevelFor(daysOverdue int) invoicedomain.BlockingLevel {
	switch {
	case daysOverdue <= 0:
		return invoicedomain.BlockingLevelNone
	case daysOverdue >= r.LockoutDays:
		return invoicedomain.BlockingLevelFullLockout
	case daysOverdue >= r.RestrictionDays:
		return invoicedomain.BlockingLevelFeatureRestriction
	case daysOverdue >= r.BannerDays:
		return invoicedomain.BlockingLevelBanner
	case daysOverdue >= r.NoticeDays:
		return invoicedomain.BlockingLevelNotice
	default:
		return invoicedomain.BlockingLevelNone
	}
}
