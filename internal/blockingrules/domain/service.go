package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type UpdateRulesRequest struct {
	NoticeDays      *int  `json:"notice_days"`
	BannerDays      *int  `json:"banner_days"`
	RestrictionDays *int  `json:"restriction_days"`
	LockoutDays     *int  `json:"lockout_days"`
	Enabled         *bool `json:"enabled"`
}

type Service interface {
	Get(ctx context.Context) (BlockingRules, error)
	// Active returns the rules only when they may drive escalation.
	Active(ctx context.Context) (BlockingRules, error)
	Update(ctx context.Context, req UpdateRulesRequest, actor string) (BlockingRules, error)
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB) (*BlockingRules, error)
	Save(ctx context.Context, db *gorm.DB, rules *BlockingRules) error
}

var (
	ErrInvalidConfiguration = errors.New("invalid_configuration")
	ErrRulesDisabled        = fmt.Errorf("%w: rules_disabled", ErrInvalidConfiguration)
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConfigError lists every rejected field of a rules update.
type ConfigError struct {
	Fields []FieldError
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Code)
	}
	return ErrInvalidConfiguration.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}
