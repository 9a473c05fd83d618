package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the zap logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	SamplingInitial     int
	SamplingThereafter  int
	SamplingWindow      time.Duration
	IncludeCaller       bool
	IncludeStackOnError bool

	// UnsampledPrefixes names messages that bypass sampling. Escalation and
	// authorization decisions are kept in full.
	UnsampledPrefixes []string
}

var defaultUnsampledPrefixes = []string{
	"escalation.",
	"authorization.",
	"reminder",
	"invoice.settled",
	"scheduler.job.",
}

// New builds the process logger and replaces the zap globals.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Encoding = "json"
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		zapCfg.Encoding = "console"
	}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	// Sampling is applied below so audit messages can skip it.
	zapCfg.Sampling = nil

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	options := []zap.Option{zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return NewAuditSampler(core, cfg)
	})}
	if cfg.IncludeCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapCfg.Build(options...)
	if err != nil {
		return nil, err
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "clinicbilling"
	}
	logger = logger.With(
		zap.String("service", serviceName),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(logger)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = logger.Sync()
				return nil
			},
		})
	}

	return logger, nil
}

// auditSampler samples ordinary messages and passes audit messages through
// untouched.
type auditSampler struct {
	raw      zapcore.Core
	sampled  zapcore.Core
	prefixes []string
}

// NewAuditSampler wraps core with a sampler that never drops messages whose
// text starts with one of cfg.UnsampledPrefixes.
func NewAuditSampler(core zapcore.Core, cfg Config) zapcore.Core {
	initial, thereafter, window := cfg.SamplingInitial, cfg.SamplingThereafter, cfg.SamplingWindow
	if initial == 0 {
		initial = 100
	}
	if thereafter == 0 {
		thereafter = 100
	}
	if window == 0 {
		window = time.Second
	}
	prefixes := cfg.UnsampledPrefixes
	if prefixes == nil {
		prefixes = defaultUnsampledPrefixes
	}
	return &auditSampler{
		raw:      core,
		sampled:  zapcore.NewSamplerWithOptions(core, window, initial, thereafter),
		prefixes: prefixes,
	}
}

func (s *auditSampler) Enabled(level zapcore.Level) bool { return s.raw.Enabled(level) }

func (s *auditSampler) With(fields []zapcore.Field) zapcore.Core {
	return &auditSampler{
		raw:      s.raw.With(fields),
		sampled:  s.sampled.With(fields),
		prefixes: s.prefixes,
	}
}

func (s *auditSampler) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(ent.Message, prefix) {
			return s.raw.Check(ent, ce)
		}
	}
	return s.sampled.Check(ent, ce)
}

func (s *auditSampler) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return s.raw.Write(ent, fields)
}

func (s *auditSampler) Sync() error { return s.raw.Sync() }

// FromContext returns the global logger enriched with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds the correlation fields present on ctx. Absent values are
// omitted so background jobs do not log empty request ids.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	var fields []zap.Field
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if tenantID := obscontext.TenantIDFromContext(ctx); tenantID != "" {
		fields = append(fields, zap.String("tenant_id", tenantID))
	}
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		fields = append(fields, zap.String("actor_type", actorType), zap.String("actor_id", actorID))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
