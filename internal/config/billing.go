package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig is the file-backed part of the configuration: default
// escalation thresholds and reminder templates.
type BillingConfig struct {
	DefaultRules RulesDefaults              `mapstructure:"defaultRules"`
	Templates    map[string]ReminderTemplate `mapstructure:"templates"`
}

type RulesDefaults struct {
	NoticeDays      int  `mapstructure:"noticeDays"`
	BannerDays      int  `mapstructure:"bannerDays"`
	RestrictionDays int  `mapstructure:"restrictionDays"`
	LockoutDays     int  `mapstructure:"lockoutDays"`
	Enabled         bool `mapstructure:"enabled"`
}

type ReminderTemplate struct {
	Subject string `mapstructure:"subject"`
	Body    string `mapstructure:"body"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DefaultRules: RulesDefaults{
			NoticeDays:      3,
			BannerDays:      5,
			RestrictionDays: 7,
			LockoutDays:     10,
			Enabled:         true,
		},
		Templates: DefaultTemplates(),
	}
}

// DefaultTemplates are keyed by blocking level name.
func DefaultTemplates() map[string]ReminderTemplate {
	return map[string]ReminderTemplate{
		"NONE": {
			Subject: "Upcoming invoice {{invoice_number}}",
			Body:    "Hello {{clinic_name}}, invoice {{invoice_number}} for {{amount}} {{currency}} is due on {{due_date}}. {{custom_message}}",
		},
		"NOTICE": {
			Subject: "Invoice {{invoice_number}} is overdue",
			Body:    "Hello {{clinic_name}}, invoice {{invoice_number}} for {{amount}} {{currency}} was due on {{due_date}} and is now {{days_overdue}} days overdue. {{custom_message}}",
		},
		"BANNER": {
			Subject: "Action needed: invoice {{invoice_number}}",
			Body:    "{{clinic_name}}, invoice {{invoice_number}} ({{amount}} {{currency}}) is {{days_overdue}} days overdue. A payment notice is now shown to your staff. {{custom_message}}",
		},
		"FEATURE_RESTRICTION": {
			Subject: "Features restricted: invoice {{invoice_number}}",
			Body:    "{{clinic_name}}, invoice {{invoice_number}} ({{amount}} {{currency}}) is {{days_overdue}} days overdue. Some features are restricted until payment is received. {{custom_message}}",
		},
		"FULL_LOCKOUT": {
			Subject: "Account locked: invoice {{invoice_number}}",
			Body:    "{{clinic_name}}, invoice {{invoice_number}} ({{amount}} {{currency}}) is {{days_overdue}} days overdue and access has been suspended. Please settle the balance to restore access. {{custom_message}}",
		},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed config. Used by tests and tools
// that do not watch a file.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(withDefaultTemplates(cfg))
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("billing-config")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/clinicbilling")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLINICBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.defaultRules.noticeDays", defaults.DefaultRules.NoticeDays)
	v.SetDefault("billing.defaultRules.bannerDays", defaults.DefaultRules.BannerDays)
	v.SetDefault("billing.defaultRules.restrictionDays", defaults.DefaultRules.RestrictionDays)
	v.SetDefault("billing.defaultRules.lockoutDays", defaults.DefaultRules.LockoutDays)
	v.SetDefault("billing.defaultRules.enabled", defaults.DefaultRules.Enabled)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		log.Info("billing.yml not found, using built-in defaults")
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			log.Warn("invalid billing config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	cfg = withDefaultTemplates(cfg)
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

// withDefaultTemplates fills in built-in templates for any level the file
// does not override. Template keys are normalised to upper case.
func withDefaultTemplates(cfg BillingConfig) BillingConfig {
	merged := DefaultTemplates()
	for kind, tmpl := range cfg.Templates {
		merged[strings.ToUpper(strings.TrimSpace(kind))] = tmpl
	}
	cfg.Templates = merged
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	r := cfg.DefaultRules
	if r.NoticeDays < 0 || r.BannerDays < 0 || r.RestrictionDays < 0 || r.LockoutDays < 0 {
		return errors.New("billing.defaultRules thresholds must be non-negative")
	}
	if !(r.NoticeDays < r.BannerDays && r.BannerDays < r.RestrictionDays && r.RestrictionDays < r.LockoutDays) {
		return fmt.Errorf("billing.defaultRules must be strictly increasing, got %d/%d/%d/%d",
			r.NoticeDays, r.BannerDays, r.RestrictionDays, r.LockoutDays)
	}
	for kind, tmpl := range cfg.Templates {
		if strings.TrimSpace(tmpl.Body) == "" {
			return fmt.Errorf("billing.templates.%s body cannot be empty", kind)
		}
	}
	return nil
}
