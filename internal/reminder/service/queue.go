package service

import (
	"context"
	"errors"
	"sync"

	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/events"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	reminderdomain "github.com/smallbiznis/clinicbilling/internal/reminder/domain"
	"go.uber.org/zap"
)

type job struct {
	invoiceID string
	kind      string
}

// Queue turns escalation events into reminder dispatches on a small worker
// pool. Enqueue never blocks the publisher; a full queue drops the job and
// the next run or an operator can resend.
type Queue struct {
	dispatcher reminderdomain.Service
	log        *zap.Logger
	metrics    *metrics.BillingMetrics
	jobs       chan job
	workers    int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueue(dispatcher reminderdomain.Service, cfg config.ReminderConfig, log *zap.Logger, m *metrics.BillingMetrics) *Queue {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	workers := cfg.QueueWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		dispatcher: dispatcher,
		log:        log.Named("reminder.queue"),
		metrics:    m,
		jobs:       make(chan job, size),
		workers:    workers,
	}
}

// Handle implements events.Handler for level-changed events. Downward
// transitions are ignored.
func (q *Queue) Handle(_ context.Context, event events.Envelope) error {
	var change invoicedomain.LevelChanged
	switch payload := event.Payload.(type) {
	case invoicedomain.LevelChanged:
		change = payload
	case *invoicedomain.LevelChanged:
		if payload == nil {
			return nil
		}
		change = *payload
	default:
		return nil
	}
	if !change.Escalated() {
		return nil
	}

	select {
	case q.jobs <- job{invoiceID: change.InvoiceID.String(), kind: string(change.NewLevel)}:
		q.metrics.SetReminderQueueDepth(len(q.jobs))
	default:
		q.log.Warn("reminder queue full, dropping job",
			zap.String("invoice_id", change.InvoiceID.String()),
			zap.String("level", string(change.NewLevel)),
		)
	}
	return nil
}

func (q *Queue) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(ctx)
	}
	q.log.Info("reminder queue started", zap.Int("workers", q.workers), zap.Int("capacity", cap(q.jobs)))
}

// Stop cancels workers and waits for in-flight dispatches, or until ctx ends.
func (q *Queue) Stop(ctx context.Context) error {
	if q.cancel != nil {
		q.cancel()
	}
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.metrics.SetReminderQueueDepth(len(q.jobs))
			q.process(ctx, j)
		}
	}
}

func (q *Queue) process(ctx context.Context, j job) {
	reminder, err := q.dispatcher.DispatchReminder(ctx, j.invoiceID, reminderdomain.DispatchOptions{Kind: j.kind})
	switch {
	case errors.Is(err, reminderdomain.ErrDuplicateReminder):
		q.log.Debug("reminder already sent today", zap.String("invoice_id", j.invoiceID))
	case errors.Is(err, reminderdomain.ErrInvoiceNotPayable):
		q.log.Debug("invoice settled before reminder", zap.String("invoice_id", j.invoiceID))
	case err != nil:
		q.log.Error("queued reminder failed", zap.String("invoice_id", j.invoiceID), zap.Error(err))
	default:
		q.log.Debug("queued reminder processed",
			zap.String("invoice_id", j.invoiceID),
			zap.String("status", string(reminder.Status)),
		)
	}
}
