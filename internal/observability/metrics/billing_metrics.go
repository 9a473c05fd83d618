package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"
)

const (
	RunOutcomeMutated       = "mutated"
	RunOutcomeMarkedOverdue = "marked_overdue"
	RunOutcomeUnchanged     = "unchanged"
	RunOutcomeConflict      = "conflict"
	RunOutcomeFailed        = "failed"
)

// BillingMetrics captures escalation, reminder and scheduler signals.
type BillingMetrics struct {
	transitions      *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runOutcomes      *prometheus.CounterVec
	reminders        *prometheus.CounterVec
	sendAttempts     *prometheus.CounterVec
	jobRuns          *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	jobSkipped       *prometheus.CounterVec
	reminderQueueLen prometheus.Gauge
}

// NewBilling registers billing collectors on registerer.
func NewBilling(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "clinicbilling"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &BillingMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "escalation_transitions_total",
			Help:        "Blocking level transitions applied to invoices.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "escalation_run_duration_seconds",
			Help:        "Duration of escalation rule evaluation runs.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}, []string{"trigger"}),
		runOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "escalation_invoice_outcomes_total",
			Help:        "Per-invoice outcomes of escalation runs.",
			ConstLabels: constLabels,
		}, []string{"outcome", "reason"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "reminders_total",
			Help:        "Reminders by final status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		sendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "reminder_send_attempts_total",
			Help:        "Messaging gateway attempts made for reminders.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "scheduler_job_errors_total",
			Help:        "Scheduler job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		jobSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "scheduler_job_skipped_total",
			Help:        "Scheduler runs skipped because another replica holds the lock.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		reminderQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "reminder_queue_depth",
			Help:        "Reminder jobs waiting for a worker.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.transitions,
		m.runDuration,
		m.runOutcomes,
		m.reminders,
		m.sendAttempts,
		m.jobRuns,
		m.jobErrors,
		m.jobSkipped,
		m.reminderQueueLen,
	)

	return m
}

func (m *BillingMetrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *BillingMetrics) ObserveRun(trigger string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

func (m *BillingMetrics) IncInvoiceOutcome(outcome string, err error) {
	if m == nil {
		return
	}
	reason := ""
	if err != nil {
		reason = ClassifyJobReason(err)
	}
	m.runOutcomes.WithLabelValues(outcome, reason).Inc()
}

func (m *BillingMetrics) IncReminder(status string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(status).Inc()
}

func (m *BillingMetrics) IncSendAttempt(result string) {
	if m == nil {
		return
	}
	m.sendAttempts.WithLabelValues(result).Inc()
}

func (m *BillingMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *BillingMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *BillingMetrics) IncJobSkipped(job string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job).Inc()
}

func (m *BillingMetrics) SetReminderQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.reminderQueueLen.Set(float64(depth))
}

// ClassifyJobReason maps errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return JobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return JobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return JobReasonUniqueViolation
	}
	return JobReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
