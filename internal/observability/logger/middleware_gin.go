package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	requestIDHeader   = "X-Request-Id"
	billingModeHeader = "X-Billing-Mode"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps a handler error to its public type and code.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware emits one http.request line per request. Gate denials and
// auth failures are raised above the default level so they survive filtering.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := strings.TrimSpace(c.FullPath())
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if invoiceID := c.Param("id"); invoiceID != "" && strings.HasPrefix(route, "/api/invoices/") {
			fields = append(fields, zap.String("invoice_id", invoiceID))
		}
		if mode := c.Writer.Header().Get(billingModeHeader); mode != "" {
			fields = append(fields, zap.String("billing_mode", mode))
		}
		if isAccessDenied(status) {
			fields = append(fields, zap.Bool("access_denied", true))
		}

		var errorType string
		if lastErr := c.Errors.Last(); lastErr != nil {
			errorCode := ""
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if status >= http.StatusInternalServerError {
				fields = append(fields, zap.Error(lastErr.Err))
				if cfg.Debug {
					fields = append(fields, zap.Stack("stack"))
				}
			}
		}

		FromContext(c.Request.Context()).Log(requestLevel(route, status, errorType), "http.request", fields...)
	}
}

func requestIDFor(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}

func requestLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return zapcore.WarnLevel
	case errorType == "validation_error":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// isAccessDenied reports the statuses the access gate answers with for
// suspended or locked tenants.
func isAccessDenied(status int) bool {
	return status == http.StatusPaymentRequired || status == http.StatusLocked
}
