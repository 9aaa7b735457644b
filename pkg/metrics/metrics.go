// Package metrics provides Prometheus instrumentation for Herald connectors.
//
// # Overview
//
// The metrics package provides:
//   - Prometheus-compatible metrics collection under the herald_ namespace
//   - Pre-defined metrics for connector operations, validation, the
//     credential cache, and batch dispatch
//   - A per-connector Collector facade with the identity labels pre-bound
//   - Thread-safe metric recording with automatic registration
//
// # Basic Usage
//
//	collector := metrics.NewCollector("twilio", "sms")
//
//	timer := metrics.NewTimer("send")
//	receipt, err := conn.Send(ctx, msg)
//	collector.RecordOperation("send", metrics.OutcomeFor(err == nil), timer.Stop())
//
//	// Package-level metrics for components without a connector identity
//	metrics.CredentialCacheHits.WithLabelValues("Basic").Inc()
//
// # Metric Types
//
// Counter: monotonically increasing values (operations, messages sent)
// Gauge: values that go up and down (connector state, in-flight dispatch)
// Histogram: distributions (operation duration percentiles)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeFault   = "fault"
)

var (
	// OperationsTotal counts every connector operation by outcome. A
	// "failure" is an unsuccessful result (Successful=false); a "fault" is
	// a contract violation returned as an error.
	// Labels: provider, channel, operation, outcome.
	//
	// Example:
	//	metrics.OperationsTotal.WithLabelValues("twilio", "sms", "send", metrics.OutcomeSuccess).Inc()
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_connector_operations_total",
			Help: "Total number of connector operations",
		},
		[]string{"provider", "channel", "operation", "outcome"},
	)

	// OperationDuration tracks the distribution of operation durations.
	// Buckets cover in-process validation (sub-millisecond) up to slow
	// provider round-trips.
	// Labels: provider, channel, operation.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "herald_connector_operation_duration_seconds",
			Help: "Connector operation duration in seconds",
			Buckets: []float64{
				0.001, // 1ms - validation-only paths
				0.005, // 5ms
				0.01,  // 10ms
				0.05,  // 50ms
				0.1,   // 100ms - typical provider API call
				0.5,   // 500ms
				1,     // 1s
				5,     // 5s - slow provider / retry
				10,    // 10s
				30,    // 30s - batch dispatch
			},
		},
		[]string{"provider", "channel", "operation"},
	)

	// MessagesSent counts messages accepted or rejected by providers.
	// Labels: provider, channel, status (message.Status values).
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_messages_sent_total",
			Help: "Total number of messages submitted to providers",
		},
		[]string{"provider", "channel", "status"},
	)

	// MessagesReceived counts inbound messages pulled from providers.
	// Labels: provider, channel.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_messages_received_total",
			Help: "Total number of messages received from providers",
		},
		[]string{"provider", "channel"},
	)

	// ValidationFailures counts rejected settings, messages, and schema
	// restrictions.
	// Labels: provider, channel, kind (settings/message/restriction).
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_validation_failures_total",
			Help: "Total number of validation failures",
		},
		[]string{"provider", "channel", "kind"},
	)

	// ConnectorState exposes the lifecycle state as a numeric gauge
	// (0=Uninitialized, 1=Initializing, 2=Ready, 3=Error, 4=ShuttingDown,
	// 5=Shutdown).
	// Labels: provider, channel.
	ConnectorState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "herald_connector_state",
			Help: "Current connector lifecycle state",
		},
		[]string{"provider", "channel"},
	)

	// DispatchInFlight tracks messages currently inside the batch dispatch
	// worker pool.
	// Labels: provider, channel.
	DispatchInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "herald_dispatch_in_flight",
			Help: "Messages currently being dispatched",
		},
		[]string{"provider", "channel"},
	)

	// CredentialCacheHits counts credential cache hits per auth method.
	CredentialCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_credential_cache_hits_total",
			Help: "Total number of credential cache hits",
		},
		[]string{"method"},
	)

	// CredentialCacheMisses counts credential cache misses per auth method.
	CredentialCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_credential_cache_misses_total",
			Help: "Total number of credential cache misses",
		},
		[]string{"method"},
	)

	// CredentialCacheEvictions counts invalidations and cache clears.
	CredentialCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_credential_cache_evictions_total",
			Help: "Total number of credential cache evictions",
		},
		[]string{"method"},
	)
)

// OutcomeFor maps an operation's success flag to its outcome label.
func OutcomeFor(successful bool) string {
	if successful {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// Collector records metrics for one connector with its identity labels
// pre-bound. Each connector instance owns its own collector.
type Collector struct {
	provider  string
	channel   string
	startTime time.Time
}

// NewCollector creates a metrics collector bound to a connector identity.
//
// Example:
//
//	collector := metrics.NewCollector("twilio", "sms")
//	collector.RecordOperation("initialize", metrics.OutcomeSuccess, time.Since(start))
func NewCollector(provider, channel string) *Collector {
	return &Collector{
		provider:  provider,
		channel:   channel,
		startTime: time.Now(),
	}
}

// StartTime returns when the collector was created.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// RecordOperation records one operation's outcome and duration.
func (c *Collector) RecordOperation(operation, outcome string, d time.Duration) {
	OperationsTotal.WithLabelValues(c.provider, c.channel, operation, outcome).Inc()
	OperationDuration.WithLabelValues(c.provider, c.channel, operation).Observe(d.Seconds())
}

// RecordFault records a contract violation for an operation.
func (c *Collector) RecordFault(operation string) {
	OperationsTotal.WithLabelValues(c.provider, c.channel, operation, OutcomeFault).Inc()
}

// RecordSent records a submitted message with its resulting status.
func (c *Collector) RecordSent(status string) {
	MessagesSent.WithLabelValues(c.provider, c.channel, status).Inc()
}

// RecordReceived records n inbound messages.
func (c *Collector) RecordReceived(n int) {
	if n > 0 {
		MessagesReceived.WithLabelValues(c.provider, c.channel).Add(float64(n))
	}
}

// RecordValidationFailures records n validation errors of the given kind.
func (c *Collector) RecordValidationFailures(kind string, n int) {
	if n > 0 {
		ValidationFailures.WithLabelValues(c.provider, c.channel, kind).Add(float64(n))
	}
}

// SetState publishes the connector's lifecycle state.
func (c *Collector) SetState(state int32) {
	ConnectorState.WithLabelValues(c.provider, c.channel).Set(float64(state))
}

// AddInFlight adjusts the dispatch in-flight gauge by delta.
func (c *Collector) AddInFlight(delta int) {
	DispatchInFlight.WithLabelValues(c.provider, c.channel).Add(float64(delta))
}

// Timer measures one operation's duration. It captures the start time on
// creation and reports elapsed time on Stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a timer and starts timing immediately.
//
// Example:
//
//	timer := metrics.NewTimer("send")
//	receipt, err := provider.Send(ctx, msg)
//	collector.RecordOperation("send", metrics.OutcomeFor(err == nil), timer.Stop())
func NewTimer(name string) *Timer {
	return &Timer{start: time.Now(), name: name}
}

// Name returns the timer's operation name.
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed time since the timer was created.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
