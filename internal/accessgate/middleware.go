package accessgate

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
)

const (
	HeaderTenantID    = "X-Tenant-ID"
	HeaderBillingMode = "X-Billing-Mode"

	contextKeyEnforcement = "billing.enforcement"
)

// RequireAccess rejects requests from tenants whose mode is at or beyond
// limit: 423 Locked for a lockout, 402 Payment Required otherwise. The tenant
// comes from the tenant_id path parameter or the X-Tenant-ID header.
func RequireAccess(gate *Gate, limit Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.Param("tenant_id"))
		if tenantID == "" {
			tenantID = strings.TrimSpace(c.GetHeader(HeaderTenantID))
		}
		if tenantID == "" {
			abort(c, http.StatusBadRequest, "invalid_request", "tenant id is required")
			return
		}

		enforcement, err := gate.CurrentEnforcement(c.Request.Context(), tenantID)
		if err != nil {
			switch {
			case errors.Is(err, invoicedomain.ErrTenantNotFound):
				abort(c, http.StatusNotFound, "not_found", "tenant not found")
			case errors.Is(err, invoicedomain.ErrInvalidTenant):
				abort(c, http.StatusBadRequest, "invalid_request", "invalid tenant id")
			default:
				abort(c, http.StatusInternalServerError, "internal_error", "unable to resolve billing status")
			}
			return
		}

		c.Set(contextKeyEnforcement, enforcement)
		c.Header(HeaderBillingMode, string(enforcement.Mode))
		c.Request = c.Request.WithContext(obscontext.WithTenantID(c.Request.Context(), enforcement.TenantID))

		if enforcement.Mode.AtLeast(limit) {
			status := http.StatusPaymentRequired
			if enforcement.Locked {
				status = http.StatusLocked
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error": gin.H{
					"type":    "billing_restricted",
					"message": "access restricted due to overdue invoices",
				},
				"enforcement": enforcement,
			})
			return
		}

		c.Next()
	}
}

// FromContext returns the enforcement resolved by RequireAccess.
func FromContext(c *gin.Context) (Enforcement, bool) {
	v, ok := c.Get(contextKeyEnforcement)
	if !ok {
		return Enforcement{}, false
	}
	enforcement, ok := v.(Enforcement)
	return enforcement, ok
}

func abort(c *gin.Context, status int, errType, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"type": errType, "message": message}})
}
