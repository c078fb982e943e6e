package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// QueryMetrics records query pipeline diagnostics. It implements
// ports.QueryObserver.
type QueryMetrics struct {
	service string

	stageDuration   *prometheus.HistogramVec
	stageCandidates *prometheus.HistogramVec
	channelFailures *prometheus.CounterVec
	rerankFallbacks prometheus.Counter
	noContext       prometheus.Counter
}

func NewQueryMetrics(registerer prometheus.Registerer, service string) *QueryMetrics {
	constLabels := prometheus.Labels{"service": service}

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "stage_duration_seconds",
			Help:        "Query pipeline stage duration in seconds.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		},
		[]string{"stage"},
	)
	stageCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "stage_candidates",
			Help:        "Candidates produced by each query pipeline stage.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 55},
			ConstLabels: constLabels,
		},
		[]string{"stage"},
	)
	channelFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "channel_failures_total",
			Help:        "Retrieval channel failures degraded to an empty result.",
			ConstLabels: constLabels,
		},
		[]string{"channel"},
	)
	rerankFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "rerank_fallback_total",
			Help:        "Rerank calls that fell back to fused order.",
			ConstLabels: constLabels,
		},
	)
	noContext := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "no_context_total",
			Help:        "Queries answered without any retrieved context.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(stageDuration, stageCandidates, channelFailures, rerankFallbacks, noContext)

	return &QueryMetrics{
		service:         service,
		stageDuration:   stageDuration,
		stageCandidates: stageCandidates,
		channelFailures: channelFailures,
		rerankFallbacks: rerankFallbacks,
		noContext:       noContext,
	}
}

func (m *QueryMetrics) ObserveStage(stage string, duration time.Duration, candidates int) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if candidates >= 0 {
		m.stageCandidates.WithLabelValues(stage).Observe(float64(candidates))
	}
}

func (m *QueryMetrics) RecordChannelFailure(channel string) {
	m.channelFailures.WithLabelValues(channel).Inc()
}

func (m *QueryMetrics) RecordRerankFallback() {
	m.rerankFallbacks.Inc()
}

func (m *QueryMetrics) RecordNoContext() {
	m.noContext.Inc()
}

// RegisterCacheStats exports the response cache counters. Values are read from
// stats on every scrape, so a disabled cache reports zeros.
func RegisterCacheStats(registerer prometheus.Registerer, service string, stats func() domain.CacheStats) {
	constLabels := prometheus.Labels{"service": service}

	registerer.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Response cache hits.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Response cache misses, including expired entries.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "entries",
			Help:        "Entries currently held by the response cache.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(stats().Entries) }),
	)
}
