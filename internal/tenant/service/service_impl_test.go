package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"github.com/smallbiznis/clinicbilling/internal/testutil"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t, &tenantdomain.Tenant{})
	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  testutil.NewNode(t),
		Clock:  clock.NewFakeClock(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)),
		Config: config.Config{TenantCacheSize: 8, TenantCacheTTL: time.Minute},
	}).(*Service)
	return svc, db
}

func TestCreateAndGetTenant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tenantdomain.CreateTenantRequest{
		Name:         "  Sunrise Dental ",
		BillingEmail: "billing@sunrise.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sunrise Dental", created.Name)

	got, err := svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "billing@sunrise.example", got.Contact())
}

func TestGetTenantReadsThroughCache(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tenantdomain.CreateTenantRequest{Name: "Clinic A", BillingPhone: "+620000"})
	require.NoError(t, err)

	require.NoError(t, db.Model(&tenantdomain.Tenant{}).Where("id = ?", created.ID).Update("name", "Renamed").Error)

	cached, err := svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Clinic A", cached.Name)

	svc.cache.Purge()
	fresh, err := svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fresh.Name)
}

func TestCreateTenantValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, tenantdomain.CreateTenantRequest{Name: " "})
	require.ErrorIs(t, err, tenantdomain.ErrInvalidName)

	_, err = svc.Create(ctx, tenantdomain.CreateTenantRequest{Name: "Clinic", BillingEmail: "not-an-email"})
	require.ErrorIs(t, err, tenantdomain.ErrInvalidEmail)
}

func TestGetUnknownTenant(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetByID(context.Background(), "12345")
	require.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)

	_, err = svc.GetByID(context.Background(), "abc")
	require.ErrorIs(t, err, tenantdomain.ErrInvalidTenant)
}

func TestListTenantsPagesInIDOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"Sunrise Dental", "Harbor Vet", "Oak Pediatrics"} {
		created, err := svc.Create(ctx, tenantdomain.CreateTenantRequest{Name: name})
		require.NoError(t, err)
		ids = append(ids, created.ID.String())
	}

	first, err := svc.List(ctx, tenantdomain.ListTenantRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Tenants, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, ids[0], first.Tenants[0].ID.String())

	second, err := svc.List(ctx, tenantdomain.ListTenantRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.Tenants, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, ids[2], second.Tenants[0].ID.String())

	byName, err := svc.List(ctx, tenantdomain.ListTenantRequest{Name: "Harbor Vet"})
	require.NoError(t, err)
	require.Len(t, byName.Tenants, 1)

	_, err = svc.List(ctx, tenantdomain.ListTenantRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	require.ErrorIs(t, err, tenantdomain.ErrInvalidPage)
}
