package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "wrapped_cancel", err: fmt.Errorf("apply: %w", context.Canceled), want: JobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestBillingMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewBilling(registry, Config{ServiceName: "clinicbilling", Environment: "test"})

	m.IncTransition("NONE", "NOTICE")
	m.IncTransition("NONE", "NOTICE")
	m.IncReminder("SENT")
	m.IncSendAttempt("error")

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("NONE", "NOTICE")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.reminders.WithLabelValues("SENT")); got != 1 {
		t.Fatalf("expected 1 sent reminder, got %v", got)
	}
	if got := testutil.ToFloat64(m.sendAttempts.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed attempt, got %v", got)
	}
}

func TestNilBillingMetricsIsSafe(t *testing.T) {
	var m *BillingMetrics
	m.IncTransition("NONE", "NOTICE")
	m.IncJobError("escalation", errors.New("boom"))
	m.SetReminderQueueDepth(3)
}
