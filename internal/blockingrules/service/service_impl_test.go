package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/clinicbilling/internal/blockingrules/domain"
	"github.com/smallbiznis/clinicbilling/internal/blockingrules/repository"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewDB(t, &domain.BlockingRules{})
	return NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)),
		Repo:    repository.Provide(),
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	}).(*Service)
}

func TestGetFallsBackToConfiguredDefaults(t *testing.T) {
	svc := newTestService(t)

	rules, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rules.NoticeDays)
	assert.Equal(t, 5, rules.BannerDays)
	assert.Equal(t, 7, rules.RestrictionDays)
	assert.Equal(t, 10, rules.LockoutDays)
	assert.True(t, rules.Enabled)
}

func TestUpdatePersistsValidRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	updated, err := svc.Update(ctx, domain.UpdateRulesRequest{
		NoticeDays:      intPtr(1),
		BannerDays:      intPtr(4),
		RestrictionDays: intPtr(8),
		LockoutDays:     intPtr(15),
	}, "user-42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", updated.UpdatedBy)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NoticeDays)
	assert.Equal(t, 15, got.LockoutDays)
	assert.Equal(t, "user-42", got.UpdatedBy)
}

func TestUpdateRejectsNonIncreasingThresholds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, domain.UpdateRulesRequest{
		NoticeDays:      intPtr(3),
		BannerDays:      intPtr(3),
		RestrictionDays: intPtr(7),
		LockoutDays:     intPtr(10),
	}, "user-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Len(t, cfgErr.Fields, 1)
	assert.Equal(t, "banner_days", cfgErr.Fields[0].Field)
	assert.Equal(t, "threshold_not_increasing", cfgErr.Fields[0].Code)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got.BannerDays, "previous configuration must stay intact")
}

func TestUpdateRejectsNegativeThreshold(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Update(context.Background(), domain.UpdateRulesRequest{NoticeDays: intPtr(-1)}, "")
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestActiveReportsDisabledRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, domain.UpdateRulesRequest{Enabled: boolPtr(false)}, "")
	require.NoError(t, err)

	_, err = svc.Active(ctx)
	require.ErrorIs(t, err, domain.ErrRulesDisabled)
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestLevelForThresholdBoundaries(t *testing.T) {
	rules := domain.BlockingRules{NoticeDays: 3, BannerDays: 5, RestrictionDays: 7, LockoutDays: 10}

	cases := map[int]invoicedomain.BlockingLevel{
		0:  invoicedomain.BlockingLevelNone,
		2:  invoicedomain.BlockingLevelNone,
		3:  invoicedomain.BlockingLevelNotice,
		4:  invoicedomain.BlockingLevelNotice,
		5:  invoicedomain.BlockingLevelBanner,
		6:  invoicedomain.BlockingLevelBanner,
		7:  invoicedomain.BlockingLevelFeatureRestriction,
		9:  invoicedomain.BlockingLevelFeatureRestriction,
		10: invoicedomain.BlockingLevelFullLockout,
		45: invoicedomain.BlockingLevelFullLockout,
	}
	for days, want := range cases {
		assert.Equal(t, want, rules.LevelFor(days), "days=%d", days)
	}
}
