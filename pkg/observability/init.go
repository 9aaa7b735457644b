package observability

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/heraldhq/herald/pkg/logger"
)

// initTracing builds the tracer provider and installs it globally
func initTracing(config TracingConfig) error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch config.ExporterType {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	default:
		// Default to stdout for development
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	}

	var sampler sdktrace.Sampler
	if config.SamplingRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else if config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(config.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(config.MaxExportBatch),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		),
	)

	otel.SetTracerProvider(tp)

	tracer = tp.Tracer(config.ServiceName)

	return nil
}

// DefaultConfig returns a default observability configuration
func DefaultConfig() Config {
	return Config{
		Tracing: TracingConfig{
			ServiceName:    getEnv("HERALD_SERVICE_NAME", "herald"),
			ServiceVersion: "1.0.0",
			Environment:    getEnv("HERALD_ENVIRONMENT", "development"),
			SamplingRate:   0.1, // 10% sampling
			ExporterType:   getEnv("HERALD_TRACE_EXPORTER", "stdout"),
			ExporterURL:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			BatchTimeout:   5 * time.Second,
			MaxExportBatch: 512,
			MaxQueueSize:   2048,
		},
	}
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Shutdown flushes pending spans and buffered log entries
func Shutdown(ctx context.Context) error {
	var errs []error

	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer: %w", err))
		}
	}

	if err := logger.Sync(); err != nil {
		// Sync on stdout/stderr fails on some platforms when output is
		// redirected. See: https://github.com/uber-go/zap/issues/328
		errStr := err.Error()
		if !strings.Contains(errStr, "bad file descriptor") &&
			!strings.Contains(errStr, "invalid argument") &&
			!strings.Contains(errStr, "/dev/stdout") &&
			!strings.Contains(errStr, "/dev/stderr") {
			errs = append(errs, fmt.Errorf("failed to sync logger: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	return nil
}
