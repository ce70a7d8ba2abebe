package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelRoute  = "route"
	LabelMethod = "method"
	LabelStatus = "status"
	LabelResult = "result"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PathsRecalculated   prometheus.Counter
	PathsDeferred       prometheus.Counter
	PathSeedRuns        *prometheus.CounterVec
	ProjectCacheLookups *prometheus.CounterVec
}

func New(reg prometheus.Registerer, namespace string, buckets []float64) *Metrics {
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Handled HTTP requests.",
		}, []string{LabelRoute, LabelMethod, LabelStatus}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   buckets,
		}, []string{LabelRoute}),
		PathsRecalculated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "org_unit_paths_recalculated_total",
			Help:      "Org unit paths rewritten by structural saves.",
		}),
		PathsDeferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "org_unit_paths_deferred_total",
			Help:      "Saves whose path calculation was deferred because the parent had no path.",
		}),
		PathSeedRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "org_unit_path_seed_runs_total",
			Help:      "Path seeding passes by outcome.",
		}, []string{LabelResult}),
		ProjectCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_cache_lookups_total",
			Help:      "Project cache lookups by result (hit, miss, error).",
		}, []string{LabelResult}),
	}
}

func (m *Metrics) ObserveHTTP(route string, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePathCalculation(changed int, deferred bool) {
	if m == nil {
		return
	}
	m.PathsRecalculated.Add(float64(changed))
	if deferred {
		m.PathsDeferred.Inc()
	}
}

func (m *Metrics) ObserveSeedRun(result string) {
	if m == nil {
		return
	}
	m.PathSeedRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProjectCache(result string) {
	if m == nil {
		return
	}
	m.ProjectCacheLookups.WithLabelValues(result).Inc()
}
