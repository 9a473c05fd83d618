package accessgate

import (
	"context"
	"errors"

	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Invoices invoicedomain.Repository
	Tenants  tenantdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

// Gate is read-only; it never mutates invoices.
type Gate struct {
	db       *gorm.DB
	log      *zap.Logger
	invoices invoicedomain.Repository
	tenants  tenantdomain.Service
	metrics  *metrics.Metrics
}

func NewGate(p Params) *Gate {
	return &Gate{
		db:       p.DB,
		log:      p.Log.Named("accessgate"),
		invoices: p.Invoices,
		tenants:  p.Tenants,
		metrics:  p.Metrics,
	}
}

// CurrentEnforcement derives the tenant's mode from the most severe level
// across its non-cancelled invoices.
func (g *Gate) CurrentEnforcement(ctx context.Context, tenantID string) (Enforcement, error) {
	tenant, err := g.tenants.GetByID(ctx, tenantID)
	switch {
	case errors.Is(err, tenantdomain.ErrInvalidTenant):
		return Enforcement{}, invoicedomain.ErrInvalidTenant
	case errors.Is(err, tenantdomain.ErrTenantNotFound):
		return Enforcement{}, invoicedomain.ErrTenantNotFound
	case err != nil:
		return Enforcement{}, err
	}

	levels, err := g.invoices.ListActiveLevels(ctx, g.db, tenant.ID)
	if err != nil {
		return Enforcement{}, err
	}

	enforcement, err := ForLevel(invoicedomain.MaxLevel(levels...))
	if err != nil {
		g.log.Error("unmapped blocking level", zap.String("tenant_id", tenant.ID.String()), zap.Error(err))
		return Enforcement{}, err
	}
	enforcement.TenantID = tenant.ID.String()

	g.metrics.RecordEnforcementCheck(ctx, string(enforcement.Mode))
	return enforcement, nil
}
