// Package observability hosts the process-wide prometheus registries and
// structured-event counters shared by the RPC surface and the market engine.
package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type marketMetrics struct {
	operations *prometheus.CounterVec
	payouts    *prometheus.CounterVec
	listings   prometheus.Gauge
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	marketMetricsOnce sync.Once
	marketRegistry    *marketMetrics
)

// RPC returns the lazily-initialised metrics registry recording JSON-RPC
// handler activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "market",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting or auth.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of one RPC call. code is the JSON-RPC error
// code, zero for success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method = strings.TrimSpace(method); method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" or "unauthorized" so dashboards stay
// consistent.
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Market returns the metrics registry tracking ledger operations.
func Market() *marketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &marketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of executed market operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "engine",
				Name:      "payout_units_total",
				Help:      "Sum of transferred settlement units segmented by leg.",
			}, []string{"leg"}),
			listings: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "market",
				Subsystem: "engine",
				Name:      "active_listings",
				Help:      "Number of listings currently active.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.payouts,
			marketRegistry.listings,
		)
	})
	return marketRegistry
}

// RecordOperation increments the operation counter.
func (m *marketMetrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	if operation = strings.TrimSpace(operation); operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// RecordPayout adds the transferred amount under the supplied settlement leg,
// one of "royalty", "seller" or "refund".
func (m *marketMetrics) RecordPayout(leg string, amount uint64) {
	if m == nil {
		return
	}
	if leg = strings.TrimSpace(leg); leg == "" {
		leg = "unknown"
	}
	m.payouts.WithLabelValues(leg).Add(float64(amount))
}

// ListingOpened and ListingClosed move the active listing gauge.
func (m *marketMetrics) ListingOpened() {
	if m != nil {
		m.listings.Inc()
	}
}

func (m *marketMetrics) ListingClosed() {
	if m != nil {
		m.listings.Dec()
	}
}
