// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "praemium"

type Collectors struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	logins        prometheus.Counter
	syncChanges   *prometheus.CounterVec
	builds        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	drift         prometheus.Counter
	pipelineRuns  *prometheus.CounterVec
	pipelineTries prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Completed logins.",
		}),
		syncChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ownership_sync_changes_total",
			Help:      "Asset records changed by ownership sync, by kind.",
		}, []string{"kind"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_built_total",
			Help:      "Transactions built, by action and result.",
		}, []string{"action", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Persisted state transitions, by action and whether anything changed.",
		}, []string{"action", "applied"}),
		drift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stake_drift_total",
			Help:      "Assets whose staked flag disagreed with the frozen state on chain.",
		}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Submission pipeline runs by action and outcome.",
		}, []string{"action", "outcome"}),
		pipelineTries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_attempts",
			Help:      "Attempts used per submission pipeline run.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
	}
	c.registry.MustRegister(
		c.requests, c.durations, c.logins, c.syncChanges, c.builds,
		c.transitions, c.drift, c.pipelineRuns, c.pipelineTries,
	)
	return c
}

// Handler serves the registry in the prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collectors) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.durations.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (c *Collectors) ObserveLogin() {
	c.logins.Inc()
}

func (c *Collectors) ObserveSync(created, reassigned, removed int) {
	c.syncChanges.WithLabelValues("created").Add(float64(created))
	c.syncChanges.WithLabelValues("reassigned").Add(float64(reassigned))
	c.syncChanges.WithLabelValues("removed").Add(float64(removed))
}

func (c *Collectors) ObserveBuild(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.builds.WithLabelValues(action, result).Inc()
}

func (c *Collectors) ObserveTransition(action string, changed int64) {
	c.transitions.WithLabelValues(action, strconv.FormatBool(changed > 0)).Inc()
}

func (c *Collectors) ObserveDrift(n int) {
	c.drift.Add(float64(n))
}

func (c *Collectors) ObservePipelineRun(action, outcome string, attempts int) {
	c.pipelineRuns.WithLabelValues(action, outcome).Inc()
	c.pipelineTries.Observe(float64(attempts))
}
