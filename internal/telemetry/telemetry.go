// Package telemetry wires the gateway's OpenTelemetry tracer and meter,
// grounded on the teacher's OpentelemetrySetting/OpentelemetryTracingSetting
// config structs and otelhttp-wrapped HTTP client in gateway/gateway.go,
// generalized from "does the gateway have tracing on" into the full set of
// operation-level metrics the spec requires.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/n9te9/federation-gateway"

// ResponseStatus is the outcome of one operation, recorded as an attribute
// on the duration histogram per §6.
type ResponseStatus string

const (
	StatusSuccess         ResponseStatus = "SUCCESS"
	StatusFieldError      ResponseStatus = "FIELD_ERROR"
	StatusFieldErrorNull  ResponseStatus = "FIELD_ERROR_NULL_DATA"
	StatusRequestError    ResponseStatus = "REQUEST_ERROR"
	StatusRefusedRequest  ResponseStatus = "REFUSED_REQUEST"
)

// Settings mirrors the teacher's OpentelemetrySetting/OpentelemetryTracingSetting
// YAML-tagged config structs. Enabled switches on OTLP trace export only;
// the metric instruments are always created against the global meter.
type Settings struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
}

// Telemetry bundles the tracer and the operation-level instruments the
// gateway records against throughout planning and execution.
type Telemetry struct {
	Tracer trace.Tracer

	OperationDuration        metric.Float64Histogram
	OperationPrepareDuration metric.Float64Histogram
	CacheHits                metric.Int64Counter
	CacheMisses              metric.Int64Counter
	Errors                   metric.Int64Counter

	shutdown func(context.Context) error
}

// New builds a Telemetry from Settings. When disabled, every instrument is
// a no-op (the otel SDK's default global providers), so call sites never
// need to branch on whether tracing is on.
func New(ctx context.Context, s Settings) (*Telemetry, error) {
	t := &Telemetry{}

	if s.Enabled {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.Endpoint)}
		if s.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		t.shutdown = tp.Shutdown
	}

	t.Tracer = otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	var err error
	if t.OperationDuration, err = meter.Float64Histogram("graphql.operation.duration",
		metric.WithDescription("duration of one GraphQL operation end to end"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if t.OperationPrepareDuration, err = meter.Float64Histogram("graphql.operation.prepare.duration",
		metric.WithDescription("time spent parsing, planning and compiling shapes before execution"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if t.CacheHits, err = meter.Int64Counter("graphql.operation.cache.hit"); err != nil {
		return nil, err
	}
	if t.CacheMisses, err = meter.Int64Counter("graphql.operation.cache.miss"); err != nil {
		return nil, err
	}
	if t.Errors, err = meter.Int64Counter("graphql.operation.errors"); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordOperation records the duration histogram for one completed
// operation with the attributes the spec names: operation type and
// response status (operation name is attached only when present, to avoid
// unbounded cardinality on anonymous queries).
func (t *Telemetry) RecordOperation(ctx context.Context, opType string, opName string, status ResponseStatus, started time.Time) {
	attrs := []attribute.KeyValue{
		attribute.String("operation.type", opType),
		attribute.String("response.status", string(status)),
	}
	if opName != "" {
		attrs = append(attrs, attribute.String("operation.name", opName))
	}
	t.OperationDuration.Record(ctx, float64(time.Since(started).Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordError increments the per-code error counter.
func (t *Telemetry) RecordError(ctx context.Context, code string) {
	t.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// Shutdown flushes and stops the tracer provider, if tracing was enabled.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}
