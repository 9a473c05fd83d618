package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the OTLP metrics pipeline.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the request-path counters pushed over OTLP: payments, access
// gate lookups and gateway sends. Escalation and reminder batches report
// through BillingMetrics instead.
type Metrics struct {
	payments    metric.Int64Counter
	gateChecks  metric.Int64Counter
	gatewaySend metric.Int64Counter
}

// NewProvider returns a noop provider when OTLP export is off.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(context.Background(), cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	)
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	log.Info("otlp metrics enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New registers the counters on the service meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	scope := cfg.ServiceName
	if scope == "" {
		scope = "clinicbilling"
	}
	meter := provider.Meter(scope)

	m := &Metrics{}
	for _, inst := range []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.payments, "clinicbilling_payments_recorded_total", "Payments recorded, by resulting invoice status."},
		{&m.gateChecks, "clinicbilling_enforcement_checks_total", "Access gate lookups, by billing mode."},
		{&m.gatewaySend, "clinicbilling_gateway_sends_total", "Messaging gateway calls, by driver and outcome."},
	} {
		counter, err := meter.Int64Counter(inst.name, metric.WithDescription(inst.desc))
		if err != nil {
			return nil, err
		}
		*inst.target = counter
	}
	return m, nil
}

func (m *Metrics) RecordPayment(ctx context.Context, status string) {
	if m == nil {
		return
	}
	add(ctx, m.payments, attribute.String("status", status))
}

func (m *Metrics) RecordEnforcementCheck(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	add(ctx, m.gateChecks, attribute.String("mode", mode))
}

func (m *Metrics) RecordGatewaySend(ctx context.Context, driver, outcome string) {
	if m == nil {
		return
	}
	add(ctx, m.gatewaySend, attribute.String("driver", driver), attribute.String("outcome", outcome))
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func newExporter(ctx context.Context, protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "", "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

// FilterAttributes keeps only the low-cardinality label keys. Tenant and
// invoice ids must never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, attr := range attrs {
		switch attr.Key {
		case "status", "mode", "driver", "outcome":
			out = append(out, attribute.String(string(attr.Key), strings.TrimSpace(attr.Value.AsString())))
		}
	}
	return out
}
