// Package metrics provides Prometheus metrics for the Tutoring Hub.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/tutoring-hub/internal/application/analytics"
	"github.com/alem-hub/tutoring-hub/internal/application/ingest"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/scheduler"
)

const namespace = "tutoring_hub"

// Batch outcome label values.
const (
	OutcomeCommitted  = "committed"
	OutcomeRejected   = "rejected"
	OutcomeRolledBack = "rolled_back"
)

// Recorder implements ingest.Recorder and analytics.QueryRecorder.
type Recorder struct {
	registry *prometheus.Registry

	batchesTotal      *prometheus.CounterVec
	rowsTotal         *prometheus.CounterVec
	measurementsTotal *prometheus.CounterVec
	batchDuration     *prometheus.HistogramVec
	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	queriesTotal      *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec
	jobsTotal         *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
}

var (
	_ ingest.Recorder         = (*Recorder)(nil)
	_ analytics.QueryRecorder = (*Recorder)(nil)
	_ scheduler.Recorder      = (*Recorder)(nil)
)

// New registers every metric on a fresh registry, next to the Go and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		batchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "batches_total",
				Help:      "Total number of ingested batches by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		rowsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "rows_total",
				Help:      "Total number of CSV rows read from committed batches",
			},
			[]string{"mode"},
		),
		measurementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "measurements_total",
				Help:      "Total number of measurements written or skipped as duplicates",
			},
			[]string{"mode", "result"},
		),
		batchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "batch_duration_seconds",
				Help:      "Duration of one batch in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		),
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "runs_total",
				Help:      "Total number of ingestion runs by mode and status",
			},
			[]string{"mode", "status"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "run_duration_seconds",
				Help:      "Duration of ingestion runs in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),
		queriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analytics",
				Name:      "queries_total",
				Help:      "Total number of analytics queries by query and cache result",
			},
			[]string{"query", "cache"},
		),
		queryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "analytics",
				Name:      "query_duration_seconds",
				Help:      "Duration of analytics queries in seconds",
				Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"query"},
		),
		jobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_total",
				Help:      "Total number of scheduled job runs by job and status",
			},
			[]string{"job", "status"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "job_duration_seconds",
				Help:      "Duration of scheduled job runs in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"job"},
		),
	}
}

// Registry returns the registry the metrics live on.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// BatchCompleted implements ingest.Recorder.
func (r *Recorder) BatchCompleted(mode ingest.Mode, result ingest.BatchResult) {
	m := string(mode)
	r.batchesTotal.WithLabelValues(m, batchOutcome(result)).Inc()
	r.batchDuration.WithLabelValues(m).Observe(result.Duration.Seconds())
	if result.Failed() {
		return
	}
	r.rowsTotal.WithLabelValues(m).Add(float64(result.Rows))
	r.measurementsTotal.WithLabelValues(m, "added").Add(float64(result.Added))
	r.measurementsTotal.WithLabelValues(m, "skipped").Add(float64(result.Skipped))
}

// RunCompleted implements ingest.Recorder.
func (r *Recorder) RunCompleted(mode ingest.Mode, d time.Duration, err error) {
	r.runsTotal.WithLabelValues(string(mode), status(err)).Inc()
	r.runDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
}

// JobCompleted implements scheduler.Recorder.
func (r *Recorder) JobCompleted(job string, d time.Duration, err error) {
	r.jobsTotal.WithLabelValues(job, status(err)).Inc()
	r.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// QueryServed implements analytics.QueryRecorder.
func (r *Recorder) QueryServed(query string, cacheHit bool, d time.Duration) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	r.queriesTotal.WithLabelValues(query, cache).Inc()
	r.queryDuration.WithLabelValues(query).Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func batchOutcome(result ingest.BatchResult) string {
	switch {
	case !result.Failed():
		return OutcomeCommitted
	case shared.IsSchema(result.Err):
		return OutcomeRejected
	default:
		return OutcomeRolledBack
	}
}
