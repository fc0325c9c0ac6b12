// Package metrics exposes the Prometheus instruments shared by the control
// API, the alert monitor and the packet inspector.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all alertwall metrics.
type Registry struct {
	// Rule store
	RulesActive   *prometheus.GaugeVec
	RuleMutations *prometheus.CounterVec

	// Control API
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
	RateLimited prometheus.Counter

	// Alert monitor
	AlertsClassified *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchLatency  prometheus.Histogram
	BlockedSetSize   prometheus.Gauge
	TailerLines      prometheus.Counter
	TailerRotations  prometheus.Counter

	// Packet inspector
	InspectedPackets *prometheus.CounterVec

	Uptime prometheus.Gauge
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.RulesActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alertwall_rules_active",
		Help: "Rules currently present in the dedicated chain",
	}, []string{"chain"})

	r.RuleMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertwall_rule_mutations_total",
		Help: "Rule create/delete attempts by outcome",
	}, []string{"op", "result"})

	r.APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertwall_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alertwall_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	r.RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertwall_api_rate_limited_total",
		Help: "Mutating requests rejected by the per-client rate limit",
	})

	r.AlertsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertwall_alerts_classified_total",
		Help: "Log lines by classification result",
	}, []string{"result"})

	r.Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertwall_dispatches_total",
		Help: "Block requests sent to the control API by outcome",
	}, []string{"outcome", "reason"})

	r.DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alertwall_dispatch_duration_seconds",
		Help:    "Round-trip time of block requests",
		Buckets: prometheus.DefBuckets,
	})

	r.BlockedSetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alertwall_blocked_addresses",
		Help: "Addresses confirmed blocked by this monitor process",
	})

	r.TailerLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertwall_tailer_lines_total",
		Help: "Complete lines read from the alert log",
	})

	r.TailerRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertwall_tailer_rotations_total",
		Help: "Alert log rotations or truncations detected",
	})

	r.InspectedPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertwall_inspected_packets_total",
		Help: "Packets seen by the NFQUEUE inspector",
	}, []string{"protocol"})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alertwall_uptime_seconds",
		Help: "Process uptime in seconds",
	})

	return r
}

// RecordRuleMutation records a create or delete attempt.
func (r *Registry) RecordRuleMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.RuleMutations.WithLabelValues(op, result).Inc()
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, statusString(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}

// RecordDispatch records the outcome of one block request.
func (r *Registry) RecordDispatch(outcome, reason string, seconds float64) {
	r.Dispatches.WithLabelValues(outcome, reason).Inc()
	r.DispatchLatency.Observe(seconds)
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return fmt.Sprintf("%d", status)
}
