package observability

import (
	"testing"

	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:  "production",
		OTLPProtocol: "udp",
		Logging:      config.LoggingConfig{Level: "info"},
	})

	assert.Equal(t, "clinicbilling", cfg.ServiceName)
	assert.Equal(t, "grpc", cfg.OtelProtocol)
	assert.False(t, cfg.Debug())
}

func TestDebugFollowsLevelAndEnvironment(t *testing.T) {
	assert.True(t, Config{Environment: "production", Log: config.LoggingConfig{Level: "debug"}}.Debug())
	assert.True(t, Config{Environment: "Local"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
