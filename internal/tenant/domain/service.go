package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
)

type CreateTenantRequest struct {
	Name         string `json:"name"`
	BillingEmail string `json:"billing_email"`
	BillingPhone string `json:"billing_phone"`
}

type ListTenantRequest struct {
	pagination.Pagination
	Name string
}

type ListTenantResponse struct {
	pagination.PageInfo
	Tenants []Tenant `json:"tenants"`
}

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (Tenant, error)
	GetByID(ctx context.Context, id string) (Tenant, error)
	List(ctx context.Context, req ListTenantRequest) (ListTenantResponse, error)
}

var (
	ErrTenantNotFound = errors.New("tenant_not_found")
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidEmail   = errors.New("invalid_billing_email")
	ErrInvalidPage    = errors.New("invalid_page_token")
)
