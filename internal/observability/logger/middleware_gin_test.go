package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) { return "conflict", err.Error() },
	}))
	return r, logs
}

func TestGinMiddlewareFlagsGateDenials(t *testing.T) {
	r, logs := newObservedEngine(t)
	r.GET("/portal/:tenant_id/access", func(c *gin.Context) {
		c.Header(billingModeHeader, "locked")
		c.Status(http.StatusLocked)
	})

	req := httptest.NewRequest(http.MethodGet, "/portal/9/access", nil)
	req.Header.Set(requestIDHeader, "req-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get(requestIDHeader))
	entries := logs.FilterMessage("http.request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "locked", fields["billing_mode"])
	assert.Equal(t, true, fields["access_denied"])
	assert.Equal(t, "req-abc", fields["request_id"])
}

func TestGinMiddlewareClassifiesErrors(t *testing.T) {
	r, logs := newObservedEngine(t)
	r.POST("/api/invoices/:id/escalate", func(c *gin.Context) {
		_ = c.Error(errors.New("invalid_transition"))
		c.Status(http.StatusConflict)
	})
	r.GET("/api/tenants/:id", func(c *gin.Context) {
		c.Status(http.StatusForbidden)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/invoices/77/escalate", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tenants/1", nil))

	entries := logs.FilterMessage("http.request").All()
	require.Len(t, entries, 2)

	conflict := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "77", conflict["invoice_id"])
	assert.Equal(t, "invalid_transition", conflict["error_code"])
	assert.NotEmpty(t, conflict["request_id"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.NotContains(t, entries[1].ContextMap(), "invoice_id")
}

func TestRequestLevelDemotesProbes(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/invoices", http.StatusInternalServerError, "internal_error"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/api/invoices", http.StatusBadRequest, "validation_error"))
}
