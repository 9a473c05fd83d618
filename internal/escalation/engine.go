// Package escalation moves invoices through blocking levels as they age.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	rulesdomain "github.com/smallbiznis/clinicbilling/internal/blockingrules/domain"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/events"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Scope limits a run to one tenant. A nil TenantID evaluates every tenant.
type Scope struct {
	TenantID *snowflake.ID
	Trigger  string
}

// Result summarises one rule evaluation run. Mutated counts blocking level
// transitions; MarkedOverdue counts invoices whose status moved to OVERDUE
// while their level stayed put.
type Result struct {
	RunID         string `json:"run_id"`
	AsOf          string `json:"as_of"`
	Evaluated     int    `json:"evaluated"`
	Mutated       int    `json:"mutated"`
	Escalated     int    `json:"escalated"`
	MarkedOverdue int    `json:"marked_overdue"`
	Unchanged     int    `json:"unchanged"`
	Conflicts     int    `json:"conflicts"`
	Failed        int    `json:"failed"`
}

// Service is the operator-facing surface of the engine.
type Service interface {
	ApplyRules(ctx context.Context, scope Scope) (Result, error)
	Escalate(ctx context.Context, invoiceID string, req EscalateRequest, actor string) (invoicedomain.Invoice, error)
}

// Settler is used by invoice settlement to reset the blocking level.
type Settler interface {
	Settle(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, status invoicedomain.InvoiceStatus, reason, actor string) (*invoicedomain.LevelChanged, error)
	PublishLevelChanged(ctx context.Context, changes ...invoicedomain.LevelChanged)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Rules    rulesdomain.Service
	Invoices invoicedomain.Repository
	History  auditdomain.Service
	Events   events.Publisher
	Tenants  tenantdomain.Service
	Metrics  *metrics.BillingMetrics `optional:"true"`
}

type Engine struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	loc      *time.Location
	workers  int
	rules    rulesdomain.Service
	invoices invoicedomain.Repository
	history  auditdomain.Service
	events   events.Publisher
	tenants  tenantdomain.Service
	metrics  *metrics.BillingMetrics
	tracer   trace.Tracer
}

func NewEngine(p Params) *Engine {
	workers := p.Config.Escalation.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		db:       p.DB,
		log:      p.Log.Named("escalation.engine"),
		clock:    p.Clock,
		loc:      p.Config.Escalation.Location(),
		workers:  workers,
		rules:    p.Rules,
		invoices: p.Invoices,
		history:  p.History,
		events:   p.Events,
		tenants:  p.Tenants,
		metrics:  p.Metrics,
		tracer:   otel.Tracer("clinicbilling/escalation"),
	}
}

// Today is the billing calendar date used for days-overdue arithmetic.
func (e *Engine) Today() time.Time {
	return clock.Date(e.clock.Now(), e.loc)
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeMarkedOverdue
	outcomeEscalated
	outcomeConflict
	outcomeFailed
)

// ApplyRules evaluates every eligible invoice in scope. Per-invoice failures
// are logged and counted without stopping the run.
func (e *Engine) ApplyRules(ctx context.Context, scope Scope) (Result, error) {
	trigger := scope.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}
	ctx, span := e.tracer.Start(ctx, "escalation.ApplyRules", trace.WithAttributes(attribute.String("trigger", trigger)))
	defer span.End()

	start := time.Now()
	log := e.log.With(zap.String("trigger", trigger))
	if scope.TenantID != nil {
		log = log.With(zap.String("tenant_id", scope.TenantID.String()))
		if err := e.requireTenant(ctx, *scope.TenantID); err != nil {
			span.SetStatus(codes.Error, "tenant lookup")
			return Result{}, err
		}
	}

	rules, err := e.rules.Active(ctx)
	if err != nil {
		log.Warn("escalation.run.skipped", zap.Error(err))
		span.SetStatus(codes.Error, "rules unavailable")
		return Result{}, err
	}

	today := e.Today()
	candidates, err := e.invoices.ListEscalationCandidates(ctx, e.db, scope.TenantID, today)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list candidates")
		return Result{}, fmt.Errorf("list escalation candidates: %w", err)
	}

	res := Result{
		RunID:     ulid.Make().String(),
		AsOf:      today.Format(invoicedomain.DateLayout),
		Evaluated: len(candidates),
	}
	log = log.With(zap.String("run_id", res.RunID), zap.String("as_of", res.AsOf))
	log.Info("escalation.run.start", zap.Int("candidates", len(candidates)))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, inv := range candidates {
		g.Go(func() error {
			oc, err := e.evaluate(ctx, inv, rules, today, res.RunID)
			mu.Lock()
			defer mu.Unlock()
			switch oc {
			case outcomeEscalated:
				res.Mutated++
				res.Escalated++
				e.metrics.IncInvoiceOutcome(metrics.RunOutcomeMutated, nil)
			case outcomeMarkedOverdue:
				res.MarkedOverdue++
				e.metrics.IncInvoiceOutcome(metrics.RunOutcomeMarkedOverdue, nil)
			case outcomeConflict:
				res.Conflicts++
				e.metrics.IncInvoiceOutcome(metrics.RunOutcomeConflict, nil)
				log.Info("escalation.invoice.conflict", zap.String("invoice_id", inv.ID.String()))
			case outcomeFailed:
				res.Failed++
				e.metrics.IncInvoiceOutcome(metrics.RunOutcomeFailed, err)
				log.Error("escalation.invoice.failed", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
			default:
				res.Unchanged++
				e.metrics.IncInvoiceOutcome(metrics.RunOutcomeUnchanged, nil)
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start)
	e.metrics.ObserveRun(trigger, duration)
	span.SetAttributes(
		attribute.Int("evaluated", res.Evaluated),
		attribute.Int("mutated", res.Mutated),
		attribute.Int("failed", res.Failed),
	)
	log.Info("escalation.run.finish",
		zap.Int("evaluated", res.Evaluated),
		zap.Int("mutated", res.Mutated),
		zap.Int("escalated", res.Escalated),
		zap.Int("marked_overdue", res.MarkedOverdue),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("conflicts", res.Conflicts),
		zap.Int("failed", res.Failed),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// requireTenant rejects a run scoped to a tenant that does not exist.
func (e *Engine) requireTenant(ctx context.Context, id snowflake.ID) error {
	_, err := e.tenants.GetByID(ctx, id.String())
	switch {
	case errors.Is(err, tenantdomain.ErrTenantNotFound):
		return invoicedomain.ErrTenantNotFound
	case errors.Is(err, tenantdomain.ErrInvalidTenant):
		return invoicedomain.ErrInvalidTenant
	}
	return err
}

func (e *Engine) evaluate(ctx context.Context, inv *invoicedomain.Invoice, rules rulesdomain.BlockingRules, today time.Time, runID string) (outcome, error) {
	days := inv.DaysOverdue(today)
	if days <= 0 {
		return outcomeUnchanged, nil
	}

	previous := inv.BlockingLevel
	target := rules.LevelFor(days)
	escalate := target.MoreSevereThan(previous)

	nextStatus := inv.Status
	if nextStatus == invoicedomain.InvoiceStatusPending {
		nextStatus = invoicedomain.InvoiceStatusOverdue
	}
	if !escalate && nextStatus == inv.Status {
		return outcomeUnchanged, nil
	}

	now := e.clock.Now().UTC()
	var change *invoicedomain.LevelChanged
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated := *inv
		updated.Status = nextStatus
		updated.UpdatedAt = now
		if escalate {
			updated.BlockingLevel = target
		}
		if err := e.invoices.UpdateState(ctx, tx, &updated, inv.Version); err != nil {
			return err
		}
		if !escalate {
			return nil
		}

		reason := fmt.Sprintf("automatic rule evaluation, %d days overdue.", days)
		if err := e.history.Append(ctx, tx, &auditdomain.BlockingHistoryEntry{
			InvoiceID:     inv.ID,
			TenantID:      inv.TenantID,
			PreviousLevel: previous,
			NewLevel:      target,
			Reason:        reason,
			AppliedBy:     auditdomain.AppliedBySystem,
			Metadata:      map[string]any{"days_overdue": days, "run_id": runID},
			CreatedAt:     now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		change = &invoicedomain.LevelChanged{
			InvoiceID:     inv.ID,
			TenantID:      inv.TenantID,
			InvoiceNumber: inv.InvoiceNumber,
			PreviousLevel: previous,
			NewLevel:      target,
			DaysOverdue:   days,
			Reason:        reason,
			AppliedBy:     auditdomain.AppliedBySystem,
			OccurredAt:    now,
		}
		return nil
	})
	switch {
	case errors.Is(err, invoicedomain.ErrConcurrentModification):
		return outcomeConflict, err
	case err != nil:
		return outcomeFailed, err
	}

	if change == nil {
		return outcomeMarkedOverdue, nil
	}
	e.PublishLevelChanged(ctx, *change)
	return outcomeEscalated, nil
}

// PublishLevelChanged emits committed transitions. Call only after the
// transaction that produced them has committed.
func (e *Engine) PublishLevelChanged(ctx context.Context, changes ...invoicedomain.LevelChanged) {
	if len(changes) == 0 {
		return
	}
	envelopes := make([]events.Envelope, 0, len(changes))
	for _, change := range changes {
		e.metrics.IncTransition(string(change.PreviousLevel), string(change.NewLevel))
		envelopes = append(envelopes, events.NewEnvelope(invoicedomain.EventLevelChanged, change.OccurredAt, change))
	}
	if e.events != nil {
		e.events.Publish(ctx, envelopes...)
	}
}

var (
	_ Service = (*Engine)(nil)
	_ Settler = (*Engine)(nil)
)
