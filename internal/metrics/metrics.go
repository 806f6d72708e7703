// Package metrics exposes Prometheus metrics for the snapshot cache, anchor
// recovery and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace prefixes every metric.
	Namespace = "folio"

	subsystemCache  = "cache"
	subsystemAnchor = "anchor"
	subsystemSyntax = "syntax"
	subsystemHTTP   = "http"
)

// Metrics holds all collectors. It implements snapshot.Observer.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Cache metrics
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheWaiters  prometheus.Counter
	StaleServes   prometheus.Counter
	Fetches       *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	Evictions     *prometheus.CounterVec

	// Anchor metrics
	AnchorRecoveries *prometheus.CounterVec

	// Syntax metrics
	SyntaxVerdicts *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	HTTPRateLimited prometheus.Counter
}

// NewMetrics creates and registers all metrics on reg. A nil reg means the
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{gatherer: prometheus.DefaultGatherer}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	factory := promauto.With(reg)
	m.initCacheMetrics(factory)
	m.initAnchorMetrics(factory)
	m.initHTTPMetrics(factory)

	return m
}

func (m *Metrics) initCacheMetrics(factory promauto.Factory) {
	m.CacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemCache,
		Name:      "hits_total",
		Help:      "Resolves served from a fresh cached snapshot",
	})
	m.CacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemCache,
		Name:      "misses_total",
		Help:      "Resolves that started a fetch",
	})
	m.CacheWaiters = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemCache,
		Name:      "coalesced_total",
		Help:      "Resolves that joined a fetch already in flight",
	})
	m.StaleServes = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemCache,
		Name:      "stale_served_total",
		Help:      "Previous snapshots returned after a failed refresh",
	})
	m.Fetches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemCache,
		Name:      "fetches_total",
		Help:      "Completed fetches by outcome",
	}, []string{"outcome"})
	m.FetchDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: subsystemCache,
		Name:      "fetch_duration_seconds",
		Help:      "Duration of fetch and conversion",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"outcome"})
	m.Evictions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemCache,
		Name:      "evictions_total",
		Help:      "Entries dropped from the snapshot table",
	}, []string{"reason"})
}

func (m *Metrics) initAnchorMetrics(factory promauto.Factory) {
	m.AnchorRecoveries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemAnchor,
		Name:      "recoveries_total",
		Help:      "Anchor recoveries by confidence, absent when detached",
	}, []string{"confidence"})
	m.SyntaxVerdicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemSyntax,
		Name:      "unsupported_total",
		Help:      "Documents flagged by the syntax gate, by reason",
	}, []string{"reason"})
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemHTTP,
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"route", "status"})
	m.HTTPDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: subsystemHTTP,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	m.HTTPRateLimited = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemHTTP,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-IP rate limit",
	})
}

// Handler serves the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheHit()     { m.CacheHits.Inc() }
func (m *Metrics) CacheMiss()    { m.CacheMisses.Inc() }
func (m *Metrics) WaiterJoined() { m.CacheWaiters.Inc() }
func (m *Metrics) StaleServed()  { m.StaleServes.Inc() }

func (m *Metrics) FetchCompleted(outcome string, elapsed time.Duration) {
	m.Fetches.WithLabelValues(outcome).Inc()
	m.FetchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) Evicted(reason string, n int) {
	m.Evictions.WithLabelValues(reason).Add(float64(n))
}

// AnchorRecovered counts one recovery. confidence is empty for a detached anchor.
func (m *Metrics) AnchorRecovered(confidence string) {
	if confidence == "" {
		confidence = "absent"
	}
	m.AnchorRecoveries.WithLabelValues(confidence).Inc()
}

// SyntaxFlagged counts each reason a document was flagged for.
func (m *Metrics) SyntaxFlagged(reasons []string) {
	for _, r := range reasons {
		m.SyntaxVerdicts.WithLabelValues(r).Inc()
	}
}

func (m *Metrics) RateLimited() { m.HTTPRateLimited.Inc() }

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
