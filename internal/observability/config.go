package observability

import (
	"strings"

	"github.com/smallbiznis/clinicbilling/internal/config"
)

// Config is the observability slice of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Log config.LoggingConfig

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "clinicbilling"
	}
	protocol := cfg.OTLPProtocol
	if protocol != "http" {
		protocol = "grpc"
	}

	return Config{
		ServiceName:       serviceName,
		Environment:       strings.TrimSpace(cfg.Environment),
		Version:           strings.TrimSpace(cfg.AppVersion),
		Log:               cfg.Logging,
		OtelEnabled:       cfg.TracingEnabled,
		OtelEndpoint:      strings.TrimSpace(cfg.OTLPEndpoint),
		OtelProtocol:      protocol,
		OtelSamplingRatio: cfg.TracingRatio,
	}
}

// Debug is true for debug logging or a non-shared environment. It turns on
// stack traces for failed requests.
func (c Config) Debug() bool {
	if c.Log.Level == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
