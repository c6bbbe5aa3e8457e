package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Pipeline metrics
	upstreamCalls    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	cacheSwept       prometheus.Counter
	limiterWait      prometheus.Histogram
	results          *prometheus.CounterVec
	signalsGenerated *prometheus.CounterVec
	allocation       *prometheus.HistogramVec
	analysisDuration prometheus.Histogram
	refreshRuns      *prometheus.CounterVec
	watchlistSymbols prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_upstream_calls_total",
			Help: "Total number of upstream provider calls",
		},
		[]string{"kind", "outcome"},
	)
	r.upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketlens_upstream_duration_seconds",
			Help:    "Upstream provider call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)
	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_cache_lookups_total",
			Help: "Total number of cache lookups by result",
		},
		[]string{"kind", "result"},
	)
	r.cacheSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketlens_cache_swept_total",
			Help: "Total number of cache entries removed by sweeps",
		},
	)
	r.limiterWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketlens_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter grant",
			Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
	r.results = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_results_total",
			Help: "Total number of pipeline results by operation and status",
		},
		[]string{"operation", "status"},
	)
	r.signalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_signals_generated_total",
			Help: "Total number of signals generated",
		},
		[]string{"indicator", "action"},
	)
	r.allocation = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketlens_allocation_percent",
			Help:    "Suggested allocation percentage",
			Buckets: []float64{0, 5, 10, 15, 20, 30, 40, 50},
		},
		[]string{"risk_profile"},
	)
	r.analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketlens_analysis_duration_seconds",
			Help:    "Analysis duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	r.refreshRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_watchlist_refresh_total",
			Help: "Total number of watchlist refresh runs",
		},
		[]string{"status"},
	)
	r.watchlistSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketlens_watchlist_symbols",
			Help: "Number of symbols in watchlist",
		},
	)

	reg.MustRegister(r.upstreamCalls)
	reg.MustRegister(r.upstreamDuration)
	reg.MustRegister(r.cacheLookups)
	reg.MustRegister(r.cacheSwept)
	reg.MustRegister(r.limiterWait)
	reg.MustRegister(r.results)
	reg.MustRegister(r.signalsGenerated)
	reg.MustRegister(r.allocation)
	reg.MustRegister(r.analysisDuration)
	reg.MustRegister(r.refreshRuns)
	reg.MustRegister(r.watchlistSymbols)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordUpstream records one provider call. outcome is "ok" or an error code.
func (r *Registry) RecordUpstream(kind, outcome string, duration float64) {
	r.upstreamCalls.WithLabelValues(kind, outcome).Inc()
	r.upstreamDuration.WithLabelValues(kind).Observe(duration)
}

// RecordCacheLookup records a cache lookup: "fresh", "stale" or "miss".
func (r *Registry) RecordCacheLookup(kind, result string) {
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordCacheSweep records entries removed by a sweep.
func (r *Registry) RecordCacheSweep(removed int) {
	r.cacheSwept.Add(float64(removed))
}

// RecordLimiterWait records time spent waiting for a limiter grant.
func (r *Registry) RecordLimiterWait(seconds float64) {
	r.limiterWait.Observe(seconds)
}

// RecordResult records the status tag of a pipeline result.
func (r *Registry) RecordResult(operation, status string) {
	r.results.WithLabelValues(operation, status).Inc()
}

// RecordSignal records a generated signal.
func (r *Registry) RecordSignal(indicator, action string) {
	r.signalsGenerated.WithLabelValues(indicator, action).Inc()
}

// RecordAllocation records a suggested allocation.
func (r *Registry) RecordAllocation(profile string, percent int) {
	r.allocation.WithLabelValues(profile).Observe(float64(percent))
}

// RecordAnalysis records an analysis duration.
func (r *Registry) RecordAnalysis(duration float64) {
	r.analysisDuration.Observe(duration)
}

// RecordRefresh records a watchlist refresh run.
func (r *Registry) RecordRefresh(status string) {
	r.refreshRuns.WithLabelValues(status).Inc()
}

// SetWatchlistSize sets the watchlist size.
func (r *Registry) SetWatchlistSize(size int) {
	r.watchlistSymbols.Set(float64(size))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
