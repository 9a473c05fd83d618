package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	auditrepo "github.com/smallbiznis/clinicbilling/internal/audit/repository"
	auditservice "github.com/smallbiznis/clinicbilling/internal/audit/service"
	rulesdomain "github.com/smallbiznis/clinicbilling/internal/blockingrules/domain"
	rulesrepo "github.com/smallbiznis/clinicbilling/internal/blockingrules/repository"
	rulesservice "github.com/smallbiznis/clinicbilling/internal/blockingrules/service"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/events"
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

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, envs ...events.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, envs...)
}

func (p *recordingPublisher) changes() []invoicedomain.LevelChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]invoicedomain.LevelChanged, 0, len(p.events))
	for _, env := range p.events {
		if change, ok := env.Payload.(invoicedomain.LevelChanged); ok {
			out = append(out, change)
		}
	}
	return out
}

// failingHistory rejects appends for one invoice and delegates the rest.
type failingHistory struct {
	auditdomain.Service
	invoiceID snowflake.ID
}

func (h failingHistory) Append(ctx context.Context, tx *gorm.DB, entry *auditdomain.BlockingHistoryEntry) error {
	if entry.InvoiceID == h.invoiceID {
		return errors.New("history store unavailable")
	}
	return h.Service.Append(ctx, tx, entry)
}

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	node     *snowflake.Node
	log      *zap.Logger
	cfg      config.Config
	engine   *Engine
	rules    rulesdomain.Service
	history  auditdomain.Service
	tenants  tenantdomain.Service
	invoices invoicedomain.Repository
	events   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t,
		&tenantdomain.Tenant{},
		&invoicedomain.Invoice{},
		&invoicedomain.Payment{},
		&auditdomain.BlockingHistoryEntry{},
		&rulesdomain.BlockingRules{},
	)
	fc := clock.NewFakeClock(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	node := testutil.NewNode(t)
	log := zap.NewNop()

	rules := rulesservice.NewService(rulesservice.Params{
		DB:      db,
		Log:     log,
		Clock:   fc,
		Repo:    rulesrepo.Provide(),
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	history := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fc,
		Repo:  auditrepo.Provide(),
	})
	cfg := config.Config{
		TenantCacheSize: 16,
		TenantCacheTTL:  time.Minute,
		Escalation:      config.EscalationConfig{Workers: 2, Timezone: "UTC"},
	}
	tenants := tenantservice.NewService(tenantservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Config: cfg})
	require.NoError(t, db.Create(&tenantdomain.Tenant{
		ID:        snowflake.ID(100),
		Name:      "Sunrise Dental",
		CreatedAt: fc.Now(),
		UpdatedAt: fc.Now(),
	}).Error)

	f := &fixture{
		db:       db,
		clock:    fc,
		node:     node,
		log:      log,
		cfg:      cfg,
		rules:    rules,
		history:  history,
		tenants:  tenants,
		invoices: invoicerepo.Provide(),
		events:   &recordingPublisher{},
	}
	f.engine = f.newEngine(history)
	return f
}

func (f *fixture) newEngine(history auditdomain.Service) *Engine {
	return NewEngine(Params{
		DB:       f.db,
		Log:      f.log,
		Clock:    f.clock,
		Config:   f.cfg,
		Rules:    f.rules,
		Invoices: f.invoices,
		History:  history,
		Events:   f.events,
		Tenants:  f.tenants,
	})
}

func (f *fixture) seedInvoice(t *testing.T, number string, due time.Time) *invoicedomain.Invoice {
	t.Helper()
	now := f.clock.Now()
	inv := &invoicedomain.Invoice{
		ID:            f.node.Generate(),
		TenantID:      snowflake.ID(100),
		InvoiceNumber: number,
		Amount:        decimal.NewFromInt(500),
		Currency:      "USD",
		DueDate:       due,
		Status:        invoicedomain.InvoiceStatusPending,
		BlockingLevel: invoicedomain.BlockingLevelNone,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.invoices.Insert(context.Background(), f.db, inv))
	return inv
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	inv, err := f.invoices.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 2, 0, 0, 0, time.UTC)
}

func TestApplyRulesEscalatesThroughLevels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-001", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	steps := []struct {
		day   int
		level invoicedomain.BlockingLevel
	}{
		{day: 15, level: invoicedomain.BlockingLevelNone},
		{day: 18, level: invoicedomain.BlockingLevelNotice},
		{day: 20, level: invoicedomain.BlockingLevelBanner},
		{day: 22, level: invoicedomain.BlockingLevelFeatureRestriction},
		{day: 25, level: invoicedomain.BlockingLevelFullLockout},
	}
	for _, step := range steps {
		f.clock.Set(day(step.day))
		_, err := f.engine.ApplyRules(ctx, Scope{Trigger: TriggerScheduled})
		require.NoError(t, err)
		assert.Equal(t, step.level, f.reload(t, inv.ID).BlockingLevel, "day %d", step.day)
	}

	got := f.reload(t, inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, got.Status)

	history, err := f.history.ListForInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, invoicedomain.BlockingLevelNone, history[0].PreviousLevel)
	assert.Equal(t, invoicedomain.BlockingLevelNotice, history[0].NewLevel)
	assert.Equal(t, "automatic rule evaluation, 3 days overdue.", history[0].Reason)
	assert.Equal(t, auditdomain.AppliedBySystem, history[0].AppliedBy)
	assert.Equal(t, invoicedomain.BlockingLevelFeatureRestriction, history[3].PreviousLevel)
	assert.Equal(t, invoicedomain.BlockingLevelFullLockout, history[3].NewLevel)

	changes := f.events.changes()
	require.Len(t, changes, 4)
	for _, change := range changes {
		assert.True(t, change.Escalated())
	}
}

func TestApplyRulesJumpsDirectlyToTargetLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-002", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	f.clock.Set(day(22))
	res, err := f.engine.ApplyRules(ctx, Scope{Trigger: TriggerManual})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 1, res.Escalated)
	assert.Equal(t, "2024-01-22", res.AsOf)

	assert.Equal(t, invoicedomain.BlockingLevelFeatureRestriction, f.reload(t, inv.ID).BlockingLevel)

	history, err := f.history.ListForInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, invoicedomain.BlockingLevelNone, history[0].PreviousLevel)
	assert.Equal(t, "automatic rule evaluation, 7 days overdue.", history[0].Reason)
}

func TestApplyRulesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-003", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	f.clock.Set(day(20))
	first, err := f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Mutated)

	version := f.reload(t, inv.ID).Version

	second, err := f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Mutated)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, version, f.reload(t, inv.ID).Version)

	history, err := f.history.ListForInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Len(t, f.events.changes(), 1)
}

func TestApplyRulesNeverDowngrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-004", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	f.clock.Set(day(22))
	_, err := f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	require.Equal(t, invoicedomain.BlockingLevelFeatureRestriction, f.reload(t, inv.ID).BlockingLevel)

	lockout := 30
	restriction := 20
	banner := 15
	notice := 10
	_, err = f.rules.Update(ctx, rulesdomain.UpdateRulesRequest{
		NoticeDays:      &notice,
		BannerDays:      &banner,
		RestrictionDays: &restriction,
		LockoutDays:     &lockout,
	}, "admin@example.com")
	require.NoError(t, err)

	f.clock.Set(day(23))
	res, err := f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Mutated)
	assert.Equal(t, invoicedomain.BlockingLevelFeatureRestriction, f.reload(t, inv.ID).BlockingLevel)
}

func TestApplyRulesMarksOverdueBelowNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-005", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	f.clock.Set(day(17))
	res, err := f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Mutated)
	assert.Equal(t, 0, res.Escalated)
	assert.Equal(t, 1, res.MarkedOverdue)

	again, err := f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.MarkedOverdue)
	assert.Equal(t, 1, again.Unchanged)

	got := f.reload(t, inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, got.Status)
	assert.Equal(t, invoicedomain.BlockingLevelNone, got.BlockingLevel)

	history, err := f.history.ListForInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.events.changes())
}

func TestApplyRulesSkipsNotYetDueAndClosedInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	future := f.seedInvoice(t, "INV-2024-006", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	paid := f.seedInvoice(t, "INV-2024-007", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Where("id = ?", paid.ID).
		Update("status", invoicedomain.InvoiceStatusPaid).Error)

	f.clock.Set(day(25))
	res, err := f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluated)
	assert.Equal(t, invoicedomain.BlockingLevelNone, f.reload(t, future.ID).BlockingLevel)
	assert.Equal(t, invoicedomain.BlockingLevelNone, f.reload(t, paid.ID).BlockingLevel)
}

func TestApplyRulesScopedToTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-008", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	f.clock.Set(day(25))
	quiet := snowflake.ID(200)
	require.NoError(t, f.db.Create(&tenantdomain.Tenant{
		ID:        quiet,
		Name:      "Harbor Physio",
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	}).Error)
	res, err := f.engine.ApplyRules(ctx, Scope{TenantID: &quiet})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluated)
	assert.Equal(t, invoicedomain.BlockingLevelNone, f.reload(t, inv.ID).BlockingLevel)

	tenant := inv.TenantID
	res, err = f.engine.ApplyRules(ctx, Scope{TenantID: &tenant})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Escalated)
}

func TestApplyRulesUnknownTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-013", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	f.clock.Set(day(25))
	missing := snowflake.ID(987654321)
	res, err := f.engine.ApplyRules(ctx, Scope{TenantID: &missing})
	require.ErrorIs(t, err, invoicedomain.ErrTenantNotFound)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, invoicedomain.BlockingLevelNone, f.reload(t, inv.ID).BlockingLevel)
}

func TestApplyRulesIsolatesInvoiceFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	a := f.seedInvoice(t, "INV-2024-014", due)
	b := f.seedInvoice(t, "INV-2024-015", due)
	c := f.seedInvoice(t, "INV-2024-016", due)

	f.clock.Set(day(22))
	broken := f.newEngine(failingHistory{Service: f.history, invoiceID: b.ID})
	res, err := broken.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Evaluated)
	assert.Equal(t, 2, res.Mutated)
	assert.Equal(t, 1, res.Failed)

	for _, id := range []snowflake.ID{a.ID, c.ID} {
		assert.Equal(t, invoicedomain.BlockingLevelFeatureRestriction, f.reload(t, id).BlockingLevel)
	}
	got := f.reload(t, b.ID)
	assert.Equal(t, invoicedomain.BlockingLevelNone, got.BlockingLevel)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, got.Status)
	assert.Equal(t, b.Version, got.Version)
	history, err := f.history.ListForInvoice(ctx, b.ID.String())
	require.NoError(t, err)
	assert.Empty(t, history)

	res, err = f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Mutated)
	assert.Equal(t, 2, res.Unchanged)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, invoicedomain.BlockingLevelFeatureRestriction, f.reload(t, b.ID).BlockingLevel)
	assert.Len(t, f.events.changes(), 3)
}

func TestApplyRulesConcurrentRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	seeded := make([]*invoicedomain.Invoice, 0, 4)
	for _, number := range []string{"INV-2024-017", "INV-2024-018", "INV-2024-019", "INV-2024-020"} {
		seeded = append(seeded, f.seedInvoice(t, number, due))
	}
	f.clock.Set(day(22))

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.ApplyRules(ctx, Scope{})
		}(i)
	}
	wg.Wait()

	escalated := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 0, results[i].Failed)
		escalated += results[i].Escalated
	}
	assert.Equal(t, len(seeded), escalated)

	for _, inv := range seeded {
		got := f.reload(t, inv.ID)
		assert.Equal(t, invoicedomain.BlockingLevelFeatureRestriction, got.BlockingLevel)
		assert.Equal(t, inv.Version+1, got.Version)
		history, err := f.history.ListForInvoice(ctx, inv.ID.String())
		require.NoError(t, err)
		assert.Len(t, history, 1)
	}
	assert.Len(t, f.events.changes(), len(seeded))
}

func TestApplyRulesRefusesDisabledRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-009", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	disabled := false
	_, err := f.rules.Update(ctx, rulesdomain.UpdateRulesRequest{Enabled: &disabled}, "admin@example.com")
	require.NoError(t, err)

	f.clock.Set(day(25))
	_, err = f.engine.ApplyRules(ctx, Scope{})
	require.ErrorIs(t, err, rulesdomain.ErrRulesDisabled)
	assert.Equal(t, invoicedomain.BlockingLevelNone, f.reload(t, inv.ID).BlockingLevel)
}

func TestEvaluateReportsConflictOnStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-010", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	stale := *inv
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Where("id = ?", inv.ID).
		Update("version", inv.Version+1).Error)

	f.clock.Set(day(22))
	rules, err := f.rules.Active(ctx)
	require.NoError(t, err)

	oc, err := f.engine.evaluate(ctx, &stale, rules, f.engine.Today(), "run-test")
	require.ErrorIs(t, err, invoicedomain.ErrConcurrentModification)
	assert.Equal(t, outcomeConflict, oc)

	got := f.reload(t, inv.ID)
	assert.Equal(t, invoicedomain.BlockingLevelNone, got.BlockingLevel)
	history, err := f.history.ListForInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.events.changes())
}

func TestEscalateOnlyMovesUpward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-011", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	f.clock.Set(day(18))

	got, err := f.engine.Escalate(ctx, inv.ID.String(), EscalateRequest{Level: "banner", Reason: "repeated late payment"}, "finops@example.com")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.BlockingLevelBanner, got.BlockingLevel)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, got.Status)

	_, err = f.engine.Escalate(ctx, inv.ID.String(), EscalateRequest{Level: "NOTICE"}, "finops@example.com")
	require.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	_, err = f.engine.Escalate(ctx, inv.ID.String(), EscalateRequest{Level: "BANNER"}, "finops@example.com")
	require.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	_, err = f.engine.Escalate(ctx, inv.ID.String(), EscalateRequest{Level: "SEVERE"}, "")
	require.ErrorIs(t, err, ErrInvalidLevel)

	_, err = f.engine.Escalate(ctx, f.node.Generate().String(), EscalateRequest{Level: "BANNER"}, "")
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	history, err := f.history.ListForInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "repeated late payment", history[0].Reason)
	assert.Equal(t, "finops@example.com", history[0].AppliedBy)
	assert.Equal(t, true, history[0].Metadata["manual"])
}

func TestSettleResetsLevelAndRecordsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-012", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	f.clock.Set(day(25))
	_, err := f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)

	current := f.reload(t, inv.ID)
	require.Equal(t, invoicedomain.BlockingLevelFullLockout, current.BlockingLevel)

	var change *invoicedomain.LevelChanged
	err = f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		change, err = f.engine.Settle(ctx, tx, current, invoicedomain.InvoiceStatusPaid, "payment received", "finops@example.com")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.False(t, change.Escalated())
	assert.Equal(t, invoicedomain.BlockingLevelFullLockout, change.PreviousLevel)

	got := f.reload(t, inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, got.Status)
	assert.Equal(t, invoicedomain.BlockingLevelNone, got.BlockingLevel)

	history, err := f.history.ListForInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "payment received", history[1].Reason)
	assert.Equal(t, invoicedomain.BlockingLevelNone, history[1].NewLevel)

	f.clock.Set(day(28))
	res, err := f.engine.ApplyRules(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluated)
}

func TestSettleWithoutLevelWritesNoHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "INV-2024-013", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	var change *invoicedomain.LevelChanged
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		change, err = f.engine.Settle(ctx, tx, inv, invoicedomain.InvoiceStatusCancelled, "invoice cancelled", "")
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, change)

	history, err := f.history.ListForInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Empty(t, history)

	closed := f.reload(t, inv.ID)
	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.engine.Settle(ctx, tx, closed, invoicedomain.InvoiceStatusOverdue, "nope", "")
		return err
	})
	require.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)
}
