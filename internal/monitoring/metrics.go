// Package monitoring exposes Prometheus metrics for the gateway: a thin
// Metrics wrapper gating global promauto collectors behind an enabled
// flag, covering token pool health, proxy routing, and request
// accounting.
package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cursor_gateway_requests_total",
			Help: "Total number of inbound chat-completion requests",
		},
		[]string{"endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cursor_gateway_requests_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"endpoint"},
	)

	TokensTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cursor_gateway_tokens_total",
			Help: "Total number of registered token slots",
		},
	)

	TokensUnhealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cursor_gateway_tokens_unhealthy",
			Help: "Number of token slots currently in a failure cooldown",
		},
	)

	TokenFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cursor_gateway_token_failures_total",
			Help: "Total upstream failures recorded per token alias",
		},
		[]string{"alias"},
	)

	TokenCooldownEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cursor_gateway_token_cooldown_events_total",
			Help: "Total number of times a token tripped its failure cooldown",
		},
		[]string{"alias"},
	)

	ProxyPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cursor_gateway_proxy_pool_size",
			Help: "Number of distinct proxy clients currently configured",
		},
	)

	RequestLogEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cursor_gateway_requestlog_entries_total",
			Help: "Total number of finalized accounting entries, by outcome",
		},
		[]string{"outcome"},
	)
)

// Metrics gates the global collectors behind an enabled flag so a
// deployment with Prometheus disabled pays no observation cost.
type Metrics struct {
	enabled bool
}

func New(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

func (m *Metrics) isEnabled() bool {
	return m.enabled
}

// RecordRequest records one completed inbound HTTP request.
func (m *Metrics) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	if !m.isEnabled() {
		return
	}
	status := strconv.Itoa(statusCode)
	RequestsTotal.WithLabelValues(endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// UpdateTokenPoolSize reports the current token slot count and how many
// are in cooldown.
func (m *Metrics) UpdateTokenPoolSize(total, unhealthy int) {
	if !m.isEnabled() {
		return
	}
	TokensTotal.Set(float64(total))
	TokensUnhealthy.Set(float64(unhealthy))
}

// RecordTokenFailure increments the per-alias failure counter, and, if
// this failure tripped the token's cooldown, the cooldown-event counter.
func (m *Metrics) RecordTokenFailure(alias string, trippedCooldown bool) {
	if !m.isEnabled() {
		return
	}
	TokenFailuresTotal.WithLabelValues(alias).Inc()
	if trippedCooldown {
		TokenCooldownEvents.WithLabelValues(alias).Inc()
	}
}

// UpdateProxyPoolSize reports the number of distinct proxy clients held.
func (m *Metrics) UpdateProxyPoolSize(size int) {
	if !m.isEnabled() {
		return
	}
	ProxyPoolSize.Set(float64(size))
}

// RecordRequestLogOutcome increments the accounting-entry counter for one
// finalized outcome ("success" or "failure").
func (m *Metrics) RecordRequestLogOutcome(outcome string) {
	if !m.isEnabled() {
		return
	}
	RequestLogEntries.WithLabelValues(outcome).Inc()
}
