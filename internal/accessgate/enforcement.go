// Package accessgate answers what a tenant may currently do given its
// outstanding invoices.
package accessgate

import (
	"errors"
	"fmt"

	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
)

type Mode string

const (
	ModeFullAccess Mode = "FULL_ACCESS"
	ModeNotice     Mode = "NOTICE"
	ModeBanner     Mode = "BANNER"
	ModeRestricted Mode = "RESTRICTED"
	ModeLocked     Mode = "LOCKED"
)

func (m Mode) Severity() int {
	switch m {
	case ModeFullAccess:
		return 0
	case ModeNotice:
		return 1
	case ModeBanner:
		return 2
	case ModeRestricted:
		return 3
	case ModeLocked:
		return 4
	default:
		return -1
	}
}

// AtLeast reports whether m is as restrictive as limit or more.
func (m Mode) AtLeast(limit Mode) bool {
	return m.Severity() >= limit.Severity()
}

// Enforcement is the tenant-facing view of the current blocking level.
type Enforcement struct {
	TenantID         string                      `json:"tenant_id"`
	Level            invoicedomain.BlockingLevel `json:"level"`
	Mode             Mode                        `json:"mode"`
	Color            string                      `json:"color,omitempty"`
	ShowBanner       bool                        `json:"show_banner"`
	RestrictFeatures bool                        `json:"restrict_features"`
	Locked           bool                        `json:"locked"`
}

var ErrUnknownLevel = errors.New("unknown_blocking_level")

// ForLevel maps a blocking level to its enforcement. Every level has an
// explicit case.
func ForLevel(level invoicedomain.BlockingLevel) (Enforcement, error) {
	switch level {
	case invoicedomain.BlockingLevelNone:
		return Enforcement{Level: level, Mode: ModeFullAccess}, nil
	case invoicedomain.BlockingLevelNotice:
		return Enforcement{Level: level, Mode: ModeNotice, Color: "blue"}, nil
	case invoicedomain.BlockingLevelBanner:
		return Enforcement{Level: level, Mode: ModeBanner, Color: "yellow", ShowBanner: true}, nil
	case invoicedomain.BlockingLevelFeatureRestriction:
		return Enforcement{Level: level, Mode: ModeRestricted, Color: "orange", ShowBanner: true, RestrictFeatures: true}, nil
	case invoicedomain.BlockingLevelFullLockout:
		return Enforcement{Level: level, Mode: ModeLocked, Color: "red", ShowBanner: true, RestrictFeatures: true, Locked: true}, nil
	default:
		return Enforcement{}, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
}
