package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuditSamplerKeepsAuditMessages(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(NewAuditSampler(core, Config{SamplingInitial: 1, SamplingThereafter: 1000}))

	for i := 0; i < 5; i++ {
		log.Info("escalation.invoice.transition")
		log.Info("http.request")
	}

	assert.Equal(t, 5, logs.FilterMessage("escalation.invoice.transition").Len())
	assert.Equal(t, 1, logs.FilterMessage("http.request").Len())
}

func TestAuditSamplerCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(NewAuditSampler(core, Config{})).With(zap.String("component", "scheduler"))

	log.Info("scheduler.job.finish")
	log.Debug("scheduler.job.debug")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "scheduler", logs.All()[0].ContextMap()["component"])
}

func TestWithContextOmitsMissingFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("background")
	assert.Empty(t, logs.All()[0].Context)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithTenantID(ctx, "42")
	ctx = obscontext.WithActor(ctx, obscontext.ActorTypeUser, "7")
	WithContext(ctx, base).Info("request")

	fields := logs.All()[1].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42", fields["tenant_id"])
	assert.Equal(t, "user", fields["actor_type"])
	assert.Equal(t, "7", fields["actor_id"])
	assert.NotContains(t, fields, "trace_id")
}
