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
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonCanceled         = "canceled"
	JobReasonUniqueViolation  = "unique_violation"
	JobReasonDBLockTimeout    = "db_lock_timeout"
	JobReasonNotFound         = "not_found"
	JobReasonUnknown          = "unknown"
)

// JobMetrics captures background job health: side-effect retries and the
// worker pool.
type JobMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	processed   *prometheus.CounterVec
	poolRunning prometheus.Gauge
	rejected    prometheus.Counter
}

func NewJobMetrics(cfg Config) (*JobMetrics, error) {
	return newJobMetrics(prometheus.DefaultRegisterer, cfg)
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) (*JobMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	m := &JobMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "campaignbridge_job_runs_total",
			Help:        "Background job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "campaignbridge_job_duration_seconds",
			Help:        "Background job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "campaignbridge_job_errors_total",
			Help:        "Background job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "campaignbridge_job_items_processed_total",
			Help:        "Items processed by background jobs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		poolRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "campaignbridge_worker_pool_running",
			Help:        "Goroutines currently running side-effect tasks.",
			ConstLabels: constLabels,
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "campaignbridge_worker_pool_rejected_total",
			Help:        "Tasks left for the retry job because the pool was saturated.",
			ConstLabels: constLabels,
		}),
	}

	for _, c := range []prometheus.Collector{m.jobRuns, m.jobDuration, m.jobErrors, m.processed, m.poolRunning, m.rejected} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *JobMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// IncJobError increments the job error counter with classification.
func (m *JobMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *JobMetrics) AddProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.processed.WithLabelValues(job).Add(float64(count))
}

func (m *JobMetrics) SetPoolRunning(n int) {
	if m == nil {
		return
	}
	m.poolRunning.Set(float64(n))
}

func (m *JobMetrics) IncPoolRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// ClassifyJobReason maps errors into a bounded set of label values.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return JobReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return JobReasonCanceled
	case errors.Is(err, gorm.ErrRecordNotFound):
		return JobReasonNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return JobReasonUniqueViolation
		case "55P03":
			return JobReasonDBLockTimeout
		}
	}
	return JobReasonUnknown
}
