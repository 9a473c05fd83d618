package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/clinicbilling/internal/config"
)

// Config controls the escalation job schedule.
type Config struct {
	Schedule string
	Location *time.Location
	Timeout  time.Duration
	LockTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule: "0 2 * * *",
		Location: time.UTC,
		Timeout:  10 * time.Minute,
	}
}

// ProvideConfig derives the scheduler config from application config. The
// schedule "off" disables the cron job.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		Schedule: strings.TrimSpace(cfg.Escalation.Schedule),
		Location: cfg.Escalation.Location(),
		Timeout:  cfg.Escalation.Timeout,
	}.withDefaults()
}

func (c Config) Enabled() bool {
	return c.Schedule != "" && !strings.EqualFold(c.Schedule, "off")
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Location == nil {
		c.Location = defaults.Location
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.Timeout + time.Minute
	}
	return c
}
