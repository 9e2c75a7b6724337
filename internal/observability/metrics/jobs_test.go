package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

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
		{name: "deadline", err: fmt.Errorf("wrap: %w", context.DeadlineExceeded), want: JobReasonDeadlineExceeded},
		{name: "canceled", err: context.Canceled, want: JobReasonCanceled},
		{name: "not found", err: gorm.ErrRecordNotFound, want: JobReasonNotFound},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: JobReasonUniqueViolation},
		{name: "lock", err: fmt.Errorf("claim: %w", &pgconn.PgError{Code: "55P03"}), want: JobReasonDBLockTimeout},
		{name: "other", err: errors.New("boom"), want: JobReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestJobMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := newJobMetrics(reg, Config{ServiceName: "campaignbridge", Environment: "test"})
	if err != nil {
		t.Fatalf("new job metrics: %v", err)
	}

	m.IncJobRun("side_effect_retry")
	m.IncJobRun("side_effect_retry")
	m.IncJobError("side_effect_retry", context.DeadlineExceeded)
	m.AddProcessed("side_effect_retry", 3)
	m.AddProcessed("side_effect_retry", 0)
	m.ObserveJobDuration("side_effect_retry", 20*time.Millisecond)
	m.IncPoolRejected()

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("side_effect_retry")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("side_effect_retry", JobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.processed.WithLabelValues("side_effect_retry")); got != 3 {
		t.Fatalf("expected 3 processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.rejected); got != 1 {
		t.Fatalf("expected 1 rejection, got %v", got)
	}
}

func TestHTTPMetricsRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newHTTPMetrics(reg, Config{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := newHTTPMetrics(reg, Config{}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
