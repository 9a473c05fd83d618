package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestGinMiddlewareRecordsBillingAttributes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := newRecorder(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/portal/:tenant_id/access", func(c *gin.Context) {
		ctx := obscontext.WithTenantID(c.Request.Context(), c.Param("tenant_id"))
		c.Request = c.Request.WithContext(obscontext.WithActor(ctx, "user", "7"))
		c.Header(billingModeHeader, "LOCKED")
		c.AbortWithStatus(http.StatusLocked)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/portal/42/access", nil))
	require.Equal(t, http.StatusLocked, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "HTTP GET /portal/:tenant_id/access", span.Name())

	attrs := attrMap(span.Attributes())
	assert.Equal(t, "42", attrs["billing.tenant_id"])
	assert.Equal(t, "user", attrs["billing.actor_type"])
	assert.Equal(t, "LOCKED", attrs["billing.mode"])

	require.Len(t, span.Events(), 1)
	assert.Equal(t, "billing.access_denied", span.Events()[0].Name)
}

func TestGinMiddlewareTagsInvoiceRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := newRecorder(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/invoices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/invoices/991", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "991", attrMap(spans[0].Attributes())["billing.invoice_id"])
	assert.Empty(t, spans[0].Events())
}
