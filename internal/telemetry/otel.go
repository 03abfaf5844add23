package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelTracer exports flow lifecycle as OpenTelemetry spans. One span is
// opened per flow at BeginFlow and closed at EndFlow with the flow's
// terminal attributes.
type OTelTracer struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error

	mu    sync.Mutex
	spans map[string]trace.Span // flow ID -> open span
}

// NewOTelTracer configures a tracer provider exporting OTLP over HTTP to
// endpoint. Returns the tracer and a shutdown function for graceful exit.
func NewOTelTracer(ctx context.Context, endpoint, serviceName, version string, insecure bool) (*OTelTracer, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &OTelTracer{
		tracer:   tp.Tracer("kubeintel/flows"),
		shutdown: tp.Shutdown,
		spans:    make(map[string]trace.Span),
	}, nil
}

// BeginFlow opens a span for the flow.
func (t *OTelTracer) BeginFlow(f *Flow) {
	_, span := t.tracer.Start(context.Background(), string(f.Type),
		trace.WithTimestamp(f.StartTime),
		trace.WithAttributes(
			attribute.String("flow.id", f.ID),
			attribute.String("flow.type", string(f.Type)),
			attribute.String("flow.model", f.Model),
		),
	)
	t.mu.Lock()
	t.spans[f.ID] = span
	t.mu.Unlock()
}

// EndFlow closes the flow's span with terminal attributes.
func (t *OTelTracer) EndFlow(f *Flow) {
	t.mu.Lock()
	span, ok := t.spans[f.ID]
	delete(t.spans, f.ID)
	t.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(
		attribute.String("flow.status", string(f.Status)),
		attribute.Int64("flow.duration_ms", f.Duration),
		attribute.Int("flow.tokens.input", f.Tokens.Input),
		attribute.Int("flow.tokens.output", f.Tokens.Output),
		attribute.Int("flow.tool_calls", len(f.Tools)),
	)
	span.End(trace.WithTimestamp(f.EndTime))
}

// Enabled reports that spans are exported.
func (t *OTelTracer) Enabled() bool { return true }

// Shutdown flushes pending spans.
func (t *OTelTracer) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}
