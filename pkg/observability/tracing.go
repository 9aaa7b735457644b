// Package observability provides distributed tracing for Herald channel
// connectors. Structured logging lives in pkg/logger and Prometheus
// metrics in pkg/metrics; this package owns the OpenTelemetry tracer and
// the propagation of trace context through message metadata.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/heraldhq/herald/pkg/message"
)

var (
	// Global tracer instance. The pre-initialization value delegates to
	// the otel global provider, which is a no-op until Initialize runs.
	tracer trace.Tracer = otel.Tracer("herald")

	// Initialization lock
	initOnce sync.Once
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	ExporterType   string // "stdout"
	ExporterURL    string
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
}

// Config contains all observability configuration
type Config struct {
	Tracing TracingConfig
}

// Initialize sets up the tracing provider and the global text-map
// propagators. It is safe to call more than once; only the first call
// takes effect.
func Initialize(config Config) error {
	var err error

	initOnce.Do(func() {
		err = initTracing(config.Tracing)
		if err != nil {
			return
		}

		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})

	return err
}

// GetTracer returns the global tracer
func GetTracer() trace.Tracer {
	return tracer
}

// Span represents a tracing span with batched attribute writes
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan creates a new span from the global tracer
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span (batched until End)
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetStatus sets the span status
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// RecordOutcome marks the span Ok or Error according to err and mirrors
// the error message onto the span attributes.
func (s *Span) RecordOutcome(err error) {
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
		s.SetAttribute("error", true)
		s.SetAttribute("error.message", err.Error())
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// Duration returns the time elapsed since the span started
func (s *Span) Duration() time.Duration {
	return time.Since(s.startTime)
}

// End flushes batched attributes and ends the span
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}

	s.span.End()
}

// ChannelTracer provides channel-scoped tracing utilities. Spans are
// named "<provider>.<channel>.<operation>" so traces from different
// connectors stay distinguishable in a shared backend.
type ChannelTracer struct {
	provider string
	channel  string
}

// NewChannelTracer creates a tracer for one provider channel
func NewChannelTracer(provider, channel string) *ChannelTracer {
	return &ChannelTracer{
		provider: provider,
		channel:  channel,
	}
}

// StartSpan starts a channel-scoped span
func (ct *ChannelTracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	operationName := fmt.Sprintf("%s.%s.%s", ct.provider, ct.channel, operation)
	ctx, span := NewSpan(ctx, operationName)

	span.SetAttribute("channel.provider", ct.provider)
	span.SetAttribute("channel.name", ct.channel)
	span.SetAttribute("channel.operation", operation)

	return ctx, span
}

// TraceMessage traces a single-message operation
func (ct *ChannelTracer) TraceMessage(ctx context.Context, messageID, operation string, fn func(context.Context) error) error {
	ctx, span := ct.StartSpan(ctx, operation)
	defer span.End()

	span.SetAttribute("message.id", messageID)

	err := fn(ctx)
	span.RecordOutcome(err)

	return err
}

// TraceBatch traces a batch operation and records its throughput
func (ct *ChannelTracer) TraceBatch(ctx context.Context, batchSize int, operation string, fn func(context.Context) error) error {
	ctx, span := ct.StartSpan(ctx, operation)
	defer span.End()

	span.SetAttribute("batch.size", batchSize)

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err == nil && duration > 0 {
		span.SetAttribute("batch.throughput", float64(batchSize)/duration.Seconds())
	}
	span.RecordOutcome(err)

	return err
}

// TracePropagator carries trace context across process boundaries
// through message metadata.
type TracePropagator struct {
	propagator propagation.TextMapPropagator
}

// NewTracePropagator creates a propagator bound to the global otel
// text-map propagator.
func NewTracePropagator() *TracePropagator {
	return &TracePropagator{
		propagator: otel.GetTextMapPropagator(),
	}
}

// Inject writes the current trace context into the message metadata
func (tp *TracePropagator) Inject(ctx context.Context, msg *message.Message) {
	if msg == nil {
		return
	}
	if msg.Metadata == nil {
		msg.Metadata = make(map[string]string)
	}
	tp.propagator.Inject(ctx, propagation.MapCarrier(msg.Metadata))
}

// Extract reads trace context from the message metadata, returning ctx
// unchanged when none is present.
func (tp *TracePropagator) Extract(ctx context.Context, msg *message.Message) context.Context {
	if msg == nil || len(msg.Metadata) == 0 {
		return ctx
	}
	return tp.propagator.Extract(ctx, propagation.MapCarrier(msg.Metadata))
}
