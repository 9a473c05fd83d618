package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clinicbilling/internal/accessgate"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
)

type listTenantsQuery struct {
	pagination.Pagination
	Name string `form:"name"`
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req tenantdomain.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, err := s.tenantSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tenant})
}

func (s *Server) ListTenants(c *gin.Context) {
	var query listTenantsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.List(c.Request.Context(), tenantdomain.ListTenantRequest{
		Pagination: query.Pagination,
		Name:       query.Name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Tenants, "page_info": resp.PageInfo})
}

func (s *Server) GetTenantByID(c *gin.Context) {
	tenant, err := s.tenantSvc.GetByID(c.Request.Context(), pathID(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) GetTenantEnforcement(c *gin.Context) {
	enforcement, err := s.gate.CurrentEnforcement(c.Request.Context(), pathID(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": enforcement})
}

// GetPortalAccess answers only when the access gate let the tenant through.
func (s *Server) GetPortalAccess(c *gin.Context) {
	enforcement, ok := accessgate.FromContext(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": enforcement})
}
