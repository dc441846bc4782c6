package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	askRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlsage_ask_requests_total",
			Help: "Total number of ask requests.",
		},
	)
	askOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlsage_ask_outcomes_total",
			Help: "Total number of ask requests by terminal state.",
		},
		[]string{"state"},
	)
	askAttemptsPerRequest = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlsage_ask_attempts_per_request",
			Help:    "Number of generation attempts consumed per ask request.",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
	generationLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlsage_generation_latency_seconds",
			Help:    "Model SQL generation latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	executionLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlsage_execution_latency_seconds",
			Help:    "Backend statement execution latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
	)
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlsage_cache_lookups_total",
			Help: "Total number of answer cache lookups by result.",
		},
		[]string{"result"},
	)
	indexFragments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlsage_index_fragments",
			Help: "Current number of schema fragments held by the index.",
		},
	)
	indexRebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlsage_index_rebuilds_total",
			Help: "Total number of completed index rebuilds.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		askRequestsTotal,
		askOutcomesTotal,
		askAttemptsPerRequest,
		generationLatencySeconds,
		executionLatencySeconds,
		cacheLookupsTotal,
		indexFragments,
		indexRebuildsTotal,
	)
}

func ObserveAskOutcome(state string, attempts int) {
	askRequestsTotal.Inc()
	askOutcomesTotal.WithLabelValues(state).Inc()
	if attempts > 0 {
		askAttemptsPerRequest.Observe(float64(attempts))
	}
}

func ObserveGenerationLatency(elapsed time.Duration) {
	generationLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveExecutionLatency(elapsed time.Duration) {
	executionLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

func SetIndexFragments(count int) {
	if count < 0 {
		count = 0
	}
	indexFragments.Set(float64(count))
}

func IncrementIndexRebuilds() {
	indexRebuildsTotal.Inc()
}
