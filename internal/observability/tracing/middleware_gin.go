package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const billingModeHeader = "X-Billing-Mode"

// GinMiddleware opens a server span per request. Billing identifiers set by
// later handlers (tenant, actor, enforcement mode) are attached on the way out.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("clinicbilling/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)
		span.SetAttributes(billingAttributes(c)...)

		switch {
		case status == http.StatusPaymentRequired || status == http.StatusLocked:
			span.AddEvent("billing.access_denied", trace.WithAttributes(
				attribute.String("billing.mode", c.Writer.Header().Get(billingModeHeader)),
			))
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

func billingAttributes(c *gin.Context) []attribute.KeyValue {
	ctx := c.Request.Context()
	var attrs []attribute.KeyValue
	if tenantID := obscontext.TenantIDFromContext(ctx); tenantID != "" {
		attrs = append(attrs, attribute.String("billing.tenant_id", tenantID))
	}
	if strings.HasPrefix(c.FullPath(), "/api/invoices/:id") {
		attrs = append(attrs, attribute.String("billing.invoice_id", c.Param("id")))
	}
	if actorType, _ := obscontext.ActorFromContext(ctx); actorType != "" {
		attrs = append(attrs, attribute.String("billing.actor_type", actorType))
	}
	if mode := c.Writer.Header().Get(billingModeHeader); mode != "" {
		attrs = append(attrs, attribute.String("billing.mode", mode))
	}
	return attrs
}
