package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/clinicbilling/internal/audit/masking"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/messaging"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	reminderdomain "github.com/smallbiznis/clinicbilling/internal/reminder/domain"
	"github.com/smallbiznis/clinicbilling/internal/reminder/template"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"github.com/smallbiznis/clinicbilling/pkg/db"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Billing  *config.BillingConfigHolder
	Repo     reminderdomain.Repository
	Invoices invoicedomain.Repository
	Tenants  tenantdomain.Service
	Gateway  messaging.Gateway
	Metrics  *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	loc      *time.Location
	cfg      config.ReminderConfig
	billing  *config.BillingConfigHolder
	repo     reminderdomain.Repository
	invoices invoicedomain.Repository
	tenants  tenantdomain.Service
	gateway  messaging.Gateway
	metrics  *metrics.BillingMetrics
}

func NewService(p Params) *Service {
	cfg := p.Config.Reminder
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.BatchConcurrent <= 0 {
		cfg.BatchConcurrent = 1
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reminder.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		loc:      p.Config.Escalation.Location(),
		cfg:      cfg,
		billing:  p.Billing,
		repo:     p.Repo,
		invoices: p.Invoices,
		tenants:  p.Tenants,
		gateway:  p.Gateway,
		metrics:  p.Metrics,
	}
}

// DispatchReminder renders and sends one reminder for an open invoice. At
// most one reminder is created per invoice per billing day. Delivery failures
// are recorded on the returned reminder rather than returned as errors.
func (s *Service) DispatchReminder(ctx context.Context, invoiceID string, opts reminderdomain.DispatchOptions) (reminderdomain.Reminder, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return reminderdomain.Reminder{}, invoicedomain.ErrInvalidInvoiceID
	}

	invoice, err := s.invoices.FindByID(ctx, s.db, id)
	if err != nil {
		return reminderdomain.Reminder{}, err
	}
	if invoice == nil {
		return reminderdomain.Reminder{}, invoicedomain.ErrInvoiceNotFound
	}
	if invoice.Status.Closed() {
		return reminderdomain.Reminder{}, reminderdomain.ErrInvoiceNotPayable
	}

	tenant, err := s.tenants.GetByID(ctx, invoice.TenantID.String())
	if err != nil {
		if errors.Is(err, tenantdomain.ErrTenantNotFound) {
			return reminderdomain.Reminder{}, invoicedomain.ErrTenantNotFound
		}
		return reminderdomain.Reminder{}, err
	}

	recipient := strings.TrimSpace(opts.Recipient)
	if recipient == "" {
		recipient = tenant.Contact()
	}
	if recipient == "" {
		return reminderdomain.Reminder{}, reminderdomain.ErrMissingRecipient
	}

	kind := strings.ToUpper(strings.TrimSpace(opts.Kind))
	if kind == "" {
		kind = string(invoice.BlockingLevel)
	}
	tmpl, ok := s.billing.Get().Templates[kind]
	if !ok {
		return reminderdomain.Reminder{}, reminderdomain.ErrUnknownTemplate
	}

	now := s.clock.Now()
	today := clock.Date(now, s.loc)
	vars := map[string]string{
		"clinic_name":    tenant.Name,
		"invoice_number": invoice.InvoiceNumber,
		"days_overdue":   strconv.Itoa(invoice.DaysOverdue(today)),
		"amount":         invoice.Amount.StringFixed(2),
		"currency":       invoice.Currency,
		"due_date":       invoice.DueDate.Format(invoicedomain.DateLayout),
		"custom_message": strings.TrimSpace(opts.CustomMessage),
	}
	subject, unresolvedSubject := template.Render(tmpl.Subject, vars)
	body, unresolvedBody := template.Render(tmpl.Body, vars)
	unresolved := mergeUnresolved(unresolvedSubject, unresolvedBody)
	if len(unresolved) > 0 {
		s.log.Warn("reminder template has unresolved placeholders",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("kind", kind),
			zap.Strings("placeholders", unresolved),
		)
	}

	reminder := reminderdomain.Reminder{
		ID:                     s.genID.Generate(),
		InvoiceID:              invoice.ID,
		TenantID:               invoice.TenantID,
		Kind:                   kind,
		Subject:                strings.TrimSpace(subject),
		Message:                strings.TrimSpace(body),
		Recipient:              recipient,
		Status:                 reminderdomain.ReminderStatusPending,
		UnresolvedPlaceholders: unresolved,
		DispatchDay:            today,
		CreatedAt:              now.UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &reminder); err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.metrics.IncReminder("duplicate")
			return reminderdomain.Reminder{}, reminderdomain.ErrDuplicateReminder
		}
		return reminderdomain.Reminder{}, err
	}

	s.deliver(ctx, &reminder)

	// The outcome is persisted even when the caller has gone away.
	if err := s.repo.Complete(context.WithoutCancel(ctx), s.db, &reminder); err != nil {
		s.log.Error("reminder.complete.failed",
			zap.String("reminder_id", reminder.ID.String()),
			zap.String("invoice_id", reminder.InvoiceID.String()),
			zap.String("dispatch_day", reminder.DispatchDay.Format(invoicedomain.DateLayout)),
			zap.String("status", string(reminder.Status)),
			zap.Int("attempts", reminder.Attempts),
			zap.Error(err),
		)
		return reminder, err
	}

	s.metrics.IncReminder(strings.ToLower(string(reminder.Status)))
	s.log.Info("reminder dispatched",
		zap.String("reminder_id", reminder.ID.String()),
		zap.String("invoice_id", reminder.InvoiceID.String()),
		zap.String("kind", reminder.Kind),
		zap.String("recipient", masking.MaskContact(reminder.Recipient)),
		zap.String("status", string(reminder.Status)),
		zap.Int("attempts", reminder.Attempts),
	)
	return reminder, nil
}

type rejectedError struct {
	code string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("%s: %s", reminderdomain.ErrDeliveryFailed, e.code)
}

func (e *rejectedError) Unwrap() error { return reminderdomain.ErrDeliveryFailed }

// deliver sends with a per-attempt timeout and retries transport failures and
// transient rejections with jittered exponential backoff.
func (s *Service) deliver(ctx context.Context, reminder *reminderdomain.Reminder) {
	msg := messaging.Message{
		Subject:   reminder.Subject,
		Body:      reminder.Message,
		Kind:      reminder.Kind,
		InvoiceID: reminder.InvoiceID.String(),
		TenantID:  reminder.TenantID.String(),
	}

	var lastCode string
	operation := func() (messaging.Result, error) {
		reminder.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()

		res, err := s.gateway.Send(attemptCtx, reminder.Recipient, msg)
		switch {
		case err != nil:
			lastCode = "transport_error"
			if errors.Is(err, context.DeadlineExceeded) {
				lastCode = "timeout"
			}
			s.metrics.IncSendAttempt("error")
			return res, err
		case !res.Delivered:
			lastCode = res.ProviderErrorCode
			if lastCode == "" {
				lastCode = "rejected"
			}
			s.metrics.IncSendAttempt("rejected")
			rejected := &rejectedError{code: lastCode}
			if res.Permanent {
				return res, backoff.Permanent(rejected)
			}
			return res, rejected
		default:
			s.metrics.IncSendAttempt("delivered")
			return res, nil
		}
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("reminder send failed, retrying",
				zap.String("reminder_id", reminder.ID.String()),
				zap.Int("attempt", reminder.Attempts),
				zap.Duration("next_in", next),
				zap.Error(err),
			)
		}),
	)

	completed := s.clock.Now().UTC()
	reminder.CompletedAt = &completed
	if err != nil {
		reminder.Status = reminderdomain.ReminderStatusFailed
		reminder.ProviderErrorCode = lastCode
		if reminder.ProviderErrorCode == "" {
			reminder.ProviderErrorCode = "cancelled"
		}
		return
	}
	reminder.Status = reminderdomain.ReminderStatusSent
	reminder.ProviderErrorCode = ""
}

// staleAfter bounds how long a dispatch can legitimately stay PENDING: every
// attempt may use its full timeout followed by the longest backoff.
func (s *Service) staleAfter() time.Duration {
	wait := s.cfg.MaxBackoff
	if wait <= 0 {
		wait = backoff.DefaultMaxInterval
	}
	return time.Duration(s.cfg.MaxAttempts)*(s.cfg.SendTimeout+wait) + time.Minute
}

// failStale surfaces reminders whose outcome was never recorded so they show
// up in the failed list instead of sitting PENDING forever.
func (s *Service) failStale(ctx context.Context) {
	now := s.clock.Now().UTC()
	n, err := s.repo.FailStale(ctx, s.db, now.Add(-s.staleAfter()), now)
	if err != nil {
		s.log.Warn("reminder.stale.sweep_failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Warn("reminder.stale.failed", zap.Int64("count", n))
	}
}

func (s *Service) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if s.cfg.InitialBackoff > 0 {
		b.InitialInterval = s.cfg.InitialBackoff
	}
	if s.cfg.MaxBackoff > 0 {
		b.MaxInterval = s.cfg.MaxBackoff
	}
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	return b
}

// DispatchBatch sends reminders concurrently. One failure never affects the
// other invoices in the batch.
func (s *Service) DispatchBatch(ctx context.Context, req reminderdomain.BatchRequest) (reminderdomain.BatchResult, error) {
	ids := dedupe(req.InvoiceIDs)
	if len(ids) == 0 {
		return reminderdomain.BatchResult{}, reminderdomain.ErrEmptyBatch
	}
	if len(ids) > reminderdomain.MaxBatchSize {
		return reminderdomain.BatchResult{}, reminderdomain.ErrBatchTooLarge
	}

	items := make([]reminderdomain.BatchItem, len(ids))
	var (
		mu     sync.Mutex
		result reminderdomain.BatchResult
	)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.BatchConcurrent)
	for i, id := range ids {
		g.Go(func() error {
			item := reminderdomain.BatchItem{InvoiceID: id}
			reminder, err := s.DispatchReminder(ctx, id, req.DispatchOptions)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, reminderdomain.ErrDuplicateReminder):
				item.Error = err.Error()
				result.Duplicates++
			case err != nil:
				item.Error = err.Error()
				result.Rejected++
			case reminder.Status == reminderdomain.ReminderStatusSent:
				item.Reminder = &reminder
				result.Sent++
			default:
				item.Reminder = &reminder
				result.Failed++
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	result.Items = items
	s.log.Info("reminder batch finished",
		zap.Int("requested", len(ids)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("rejected", result.Rejected),
	)
	return result, nil
}

func (s *Service) ListForInvoice(ctx context.Context, invoiceID string) ([]reminderdomain.Reminder, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	items, err := s.repo.ListByInvoice(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	reminders := make([]reminderdomain.Reminder, 0, len(items))
	for _, item := range items {
		reminders = append(reminders, *item)
	}
	return reminders, nil
}

// ListFailed pages through permanently failed reminders for operator follow-up.
func (s *Service) ListFailed(ctx context.Context, page pagination.Pagination) (reminderdomain.ListRemindersResponse, error) {
	s.failStale(ctx)

	filter := reminderdomain.ListFilter{Status: reminderdomain.ReminderStatusFailed}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return reminderdomain.ListRemindersResponse{}, invoicedomain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return reminderdomain.ListRemindersResponse{}, invoicedomain.ErrInvalidPageToken
		}
		filter.AfterID = &afterID
	}

	size := page.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	filter.Limit = size + 1

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return reminderdomain.ListRemindersResponse{}, err
	}
	trimmed, info, err := pagination.BuildCursorPageInfo(items, size, func(r *reminderdomain.Reminder) string {
		return r.ID.String()
	})
	if err != nil {
		return reminderdomain.ListRemindersResponse{}, err
	}

	reminders := make([]reminderdomain.Reminder, 0, len(trimmed))
	for _, item := range trimmed {
		reminders = append(reminders, *item)
	}
	return reminderdomain.ListRemindersResponse{PageInfo: info, Reminders: reminders}, nil
}

func mergeUnresolved(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ reminderdomain.Service = (*Service)(nil)
