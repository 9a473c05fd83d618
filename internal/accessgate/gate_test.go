package accessgate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/clinicbilling/internal/invoice/repository"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	tenantservice "github.com/smallbiznis/clinicbilling/internal/tenant/service"
	"github.com/smallbiznis/clinicbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestForLevelCoversEveryLevel(t *testing.T) {
	expected := map[invoicedomain.BlockingLevel]Mode{
		invoicedomain.BlockingLevelNone:               ModeFullAccess,
		invoicedomain.BlockingLevelNotice:             ModeNotice,
		invoicedomain.BlockingLevelBanner:             ModeBanner,
		invoicedomain.BlockingLevelFeatureRestriction: ModeRestricted,
		invoicedomain.BlockingLevelFullLockout:        ModeLocked,
	}

	previous := -1
	for _, level := range invoicedomain.BlockingLevels() {
		enforcement, err := ForLevel(level)
		require.NoError(t, err, level)
		assert.Equal(t, expected[level], enforcement.Mode, level)
		assert.Equal(t, level, enforcement.Level)
		assert.Greater(t, enforcement.Mode.Severity(), previous, "modes must follow level order")
		previous = enforcement.Mode.Severity()
	}
	assert.Len(t, expected, len(invoicedomain.BlockingLevels()))

	_, err := ForLevel("SUSPENDED")
	require.ErrorIs(t, err, ErrUnknownLevel)
}

func TestForLevelFlags(t *testing.T) {
	none, _ := ForLevel(invoicedomain.BlockingLevelNone)
	assert.Empty(t, none.Color)
	assert.False(t, none.ShowBanner)

	banner, _ := ForLevel(invoicedomain.BlockingLevelBanner)
	assert.Equal(t, "yellow", banner.Color)
	assert.True(t, banner.ShowBanner)
	assert.False(t, banner.RestrictFeatures)

	restricted, _ := ForLevel(invoicedomain.BlockingLevelFeatureRestriction)
	assert.Equal(t, "orange", restricted.Color)
	assert.True(t, restricted.RestrictFeatures)
	assert.False(t, restricted.Locked)

	locked, _ := ForLevel(invoicedomain.BlockingLevelFullLockout)
	assert.Equal(t, "red", locked.Color)
	assert.True(t, locked.Locked)
}

type gateEnv struct {
	db     *gorm.DB
	gate   *Gate
	tenant tenantdomain.Tenant
	repo   invoicedomain.Repository
	node   *snowflake.Node
	seq    int
}

func newGateEnv(t *testing.T) *gateEnv {
	t.Helper()
	db := testutil.NewDB(t, &tenantdomain.Tenant{}, &invoicedomain.Invoice{})
	fc := clock.NewFakeClock(time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC))
	node := testutil.NewNode(t)
	tenants := tenantservice.NewService(tenantservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fc,
		Config: config.Config{TenantCacheSize: 4, TenantCacheTTL: time.Minute},
	})
	tenant, err := tenants.Create(context.Background(), tenantdomain.CreateTenantRequest{Name: "Clinic"})
	require.NoError(t, err)

	repo := invoicerepo.Provide()
	return &gateEnv{
		db:     db,
		gate:   NewGate(Params{DB: db, Log: zap.NewNop(), Invoices: repo, Tenants: tenants}),
		tenant: tenant,
		repo:   repo,
		node:   node,
	}
}

func (e *gateEnv) addInvoice(t *testing.T, status invoicedomain.InvoiceStatus, level invoicedomain.BlockingLevel) {
	t.Helper()
	e.seq++
	now := time.Now().UTC()
	require.NoError(t, e.repo.Insert(context.Background(), e.db, &invoicedomain.Invoice{
		ID:            e.node.Generate(),
		TenantID:      e.tenant.ID,
		InvoiceNumber: fmt.Sprintf("INV-%03d", e.seq),
		Amount:        decimal.NewFromInt(10),
		Currency:      "USD",
		DueDate:       now,
		Status:        status,
		BlockingLevel: level,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
}

func TestCurrentEnforcementUsesMostSevereOpenInvoice(t *testing.T) {
	env := newGateEnv(t)
	ctx := context.Background()

	enforcement, err := env.gate.CurrentEnforcement(ctx, env.tenant.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ModeFullAccess, enforcement.Mode)

	env.addInvoice(t, invoicedomain.InvoiceStatusOverdue, invoicedomain.BlockingLevelNotice)
	env.addInvoice(t, invoicedomain.InvoiceStatusPartial, invoicedomain.BlockingLevelFeatureRestriction)
	env.addInvoice(t, invoicedomain.InvoiceStatusCancelled, invoicedomain.BlockingLevelFullLockout)

	enforcement, err = env.gate.CurrentEnforcement(ctx, env.tenant.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.BlockingLevelFeatureRestriction, enforcement.Level)
	assert.Equal(t, ModeRestricted, enforcement.Mode)
	assert.Equal(t, env.tenant.ID.String(), enforcement.TenantID)

	_, err = env.gate.CurrentEnforcement(ctx, "424242")
	require.ErrorIs(t, err, invoicedomain.ErrTenantNotFound)
}

func TestRequireAccessMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newGateEnv(t)

	router := gin.New()
	router.GET("/app", RequireAccess(env.gate, ModeRestricted), func(c *gin.Context) {
		enforcement, ok := FromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, enforcement)
	})

	call := func(tenant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/app", nil)
		if tenant != "" {
			req.Header.Set(HeaderTenantID, tenant)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, call("").Code)

	env.addInvoice(t, invoicedomain.InvoiceStatusOverdue, invoicedomain.BlockingLevelBanner)
	w := call(env.tenant.ID.String())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(ModeBanner), w.Header().Get(HeaderBillingMode))

	env.addInvoice(t, invoicedomain.InvoiceStatusOverdue, invoicedomain.BlockingLevelFeatureRestriction)
	assert.Equal(t, http.StatusPaymentRequired, call(env.tenant.ID.String()).Code)

	env.addInvoice(t, invoicedomain.InvoiceStatusOverdue, invoicedomain.BlockingLevelFullLockout)
	assert.Equal(t, http.StatusLocked, call(env.tenant.ID.String()).Code)
}
