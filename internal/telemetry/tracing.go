// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package telemetry wires OpenTelemetry tracing for pipeline stages and
// coding tasks. When no collector endpoint is configured the provider is a
// no-op and spans cost nothing.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "promptforge"

// Config holds OpenTelemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	CollectorURL   string // OTLP HTTP endpoint, host:port; empty disables export
	Environment    string
	SamplingRate   float64
}

// DefaultConfig returns a default configuration with export disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "promptforge",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		SamplingRate:   1.0,
	}
}

// TracerProvider manages the OpenTelemetry tracer provider for one run.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// NewTracerProvider initializes tracing. With an empty CollectorURL the
// global provider stays a no-op and Shutdown does nothing.
func NewTracerProvider(ctx context.Context, config *Config) (*TracerProvider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.CollectorURL == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &TracerProvider{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(config.CollectorURL),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SamplingRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: tp}, nil
}

// Shutdown flushes remaining spans and shuts the provider down.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return tp.provider.Shutdown(shutdownCtx)
}

// StartSpan starts a span on the promptforge tracer.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, trace.WithAttributes(attrs...))
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddAttributes adds attributes to the current span.
func AddAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// Common attribute keys for consistency
const (
	AttrProjectID  = attribute.Key("pipeline.project_id")
	AttrStage      = attribute.Key("pipeline.stage")
	AttrAttempt    = attribute.Key("pipeline.attempt")
	AttrTaskID     = attribute.Key("task.id")
	AttrTaskFile   = attribute.Key("task.file")
	AttrIterations = attribute.Key("task.iterations")
	AttrSessionID  = attribute.Key("llm.session_id")
	AttrModel      = attribute.Key("llm.model")
	AttrTool       = attribute.Key("tool.name")
)

// StageAttrs creates attributes for a stage span.
func StageAttrs(projectID, stage string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProjectID.String(projectID),
		AttrStage.String(stage),
		AttrAttempt.Int(attempt),
	}
}

// TaskAttrs creates attributes for a coding task span.
func TaskAttrs(taskID, filePath string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTaskID.String(taskID),
		AttrTaskFile.String(filePath),
	}
}
