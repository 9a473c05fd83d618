package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	rulesdomain "github.com/smallbiznis/clinicbilling/internal/blockingrules/domain"
	"github.com/smallbiznis/clinicbilling/internal/escalation"
)

func (s *Server) GetBillingRules(c *gin.Context) {
	rules, err := s.rulesSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (s *Server) UpdateBillingRules(c *gin.Context) {
	var req rulesdomain.UpdateRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rules, err := s.rulesSvc.Update(c.Request.Context(), req, currentActor(c).appliedBy())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

// ApplyBillingRules runs the escalation engine on demand, optionally for a
// single tenant.
func (s *Server) ApplyBillingRules(c *gin.Context) {
	tenantID, err := parseOptionalSnowflakeID(c.Query("tenant_id"))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid tenant id"))
		return
	}

	result, err := s.escalations.ApplyRules(c.Request.Context(), escalation.Scope{
		TenantID: tenantID,
		Trigger:  escalation.TriggerManual,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
