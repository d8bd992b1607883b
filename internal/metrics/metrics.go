package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for pessimist
type Metrics struct {
	// Solve metrics
	SolveRuns     *prometheus.CounterVec
	SolveDuration *prometheus.HistogramVec
	Suggestions   prometheus.Counter
	Inconsistent  *prometheus.CounterVec

	// Plan execution metrics
	PlanExecutions *prometheus.CounterVec
	PlanDuration   *prometheus.HistogramVec
	PlansSkipped   *prometheus.CounterVec

	// Registry metrics
	RegistryLookups *prometheus.CounterVec
	RegistryLatency *prometheus.HistogramVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter

	// Catalog metrics
	CatalogCandidates *prometheus.HistogramVec

	// Environment metrics
	EnvProvisions        *prometheus.CounterVec
	EnvProvisionDuration *prometheus.HistogramVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SolveRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pessimist_solve_runs_total",
				Help: "Total number of solve runs by exit status",
			},
			[]string{"mode", "status"},
		),
		SolveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pessimist_solve_duration_seconds",
				Help:    "Wall time of a whole solve in seconds",
				Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"mode"},
		),
		Suggestions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pessimist_narrowing_suggestions_total",
				Help: "Total number of lower-bound narrowing suggestions emitted",
			},
		),
		Inconsistent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pessimist_inconsistent_results_total",
				Help: "Probe results that contradict monotonic compatibility",
			},
			[]string{"package"},
		),

		PlanExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pessimist_plan_executions_total",
				Help: "Total number of executed plans",
			},
			[]string{"kind", "success"},
		),
		PlanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pessimist_plan_duration_seconds",
				Help:    "Install plus test duration of one plan in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		PlansSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pessimist_plans_skipped_total",
				Help: "Plans dequeued after cancellation and never executed",
			},
			[]string{"kind"},
		),

		RegistryLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pessimist_registry_lookups_total",
				Help: "Total number of package index lookups",
			},
			[]string{"source", "success"},
		),
		RegistryLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pessimist_registry_latency_seconds",
				Help:    "Package index request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pessimist_registry_cache_hits_total",
				Help: "Index lookups answered from the disk cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pessimist_registry_cache_misses_total",
				Help: "Index lookups that had to reach the index",
			},
		),

		CatalogCandidates: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pessimist_catalog_candidates",
				Help:    "Number of candidate versions per catalog entry",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"kind"},
		),

		EnvProvisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pessimist_env_provisions_total",
				Help: "Total number of isolated environments created",
			},
			[]string{"runner", "success"},
		),
		EnvProvisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pessimist_env_provision_duration_seconds",
				Help:    "Environment creation time in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"runner"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pessimist_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code"},
		),
	}
}

// The Observe helpers below accept a nil receiver so components can be
// constructed without metrics.

// ObservePlan records one executed plan.
func (m *Metrics) ObservePlan(kind string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.PlanExecutions.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
	m.PlanDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveSkipped records a plan that was dequeued after cancellation.
func (m *Metrics) ObserveSkipped(kind string) {
	if m == nil {
		return
	}
	m.PlansSkipped.WithLabelValues(kind).Inc()
}

// ObserveLookup records one index lookup. source is "index" or "cache".
func (m *Metrics) ObserveLookup(source string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.RegistryLookups.WithLabelValues(source, strconv.FormatBool(success)).Inc()
	if source == "index" {
		m.RegistryLatency.WithLabelValues().Observe(d.Seconds())
	}
}

// ObserveCache records a cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// ObserveCandidates records the size of one catalog entry.
func (m *Metrics) ObserveCandidates(kind string, n int) {
	if m == nil {
		return
	}
	m.CatalogCandidates.WithLabelValues(kind).Observe(float64(n))
}

// ObserveProvision records one environment creation.
func (m *Metrics) ObserveProvision(runner string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.EnvProvisions.WithLabelValues(runner, strconv.FormatBool(success)).Inc()
	m.EnvProvisionDuration.WithLabelValues(runner).Observe(d.Seconds())
}

// ObserveSolve records the outcome of a whole solve.
func (m *Metrics) ObserveSolve(mode string, status int, d time.Duration, suggestions int) {
	if m == nil {
		return
	}
	m.SolveRuns.WithLabelValues(mode, strconv.Itoa(status)).Inc()
	m.SolveDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.Suggestions.Add(float64(suggestions))
}

// ObserveInconsistency records a non-monotonic probe result for a package.
func (m *Metrics) ObserveInconsistency(pkg string) {
	if m == nil {
		return
	}
	m.Inconsistent.WithLabelValues(pkg).Inc()
}

// ObserveError counts a structured error by code.
func (m *Metrics) ObserveError(code string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code).Inc()
}
