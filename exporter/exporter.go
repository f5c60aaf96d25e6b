// Package exporter wires the delivery side of the beacon SDK: an OTLP HTTP
// trace exporter behind a batch span processor, optionally fronted by a
// SQLite-backed buffer that rides out connectivity gaps.
package exporter

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Option configures New.
type Option func(*settings)

type settings struct {
	endpoint   string
	insecure   bool
	bufferPath string
	logger     *slog.Logger
}

// WithEndpoint sets the OTLP HTTP endpoint (host:port). If not set, the
// standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, ...) apply.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) { s.endpoint = endpoint }
}

// WithInsecure disables TLS for the OTLP connection.
func WithInsecure() Option {
	return func(s *settings) { s.insecure = true }
}

// WithBuffer enables disk buffering of undelivered spans in a SQLite file at
// path.
func WithBuffer(path string) Option {
	return func(s *settings) { s.bufferPath = path }
}

// WithLogger sets a structured logger for delivery diagnostics. If not set,
// no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// New builds a TracerProvider that batches spans and delivers them over OTLP
// HTTP. It returns the provider and a shutdown function that flushes
// outstanding spans and releases the pipeline; call it on application exit.
func New(ctx context.Context, serviceName string, opts ...Option) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build resource: %w", err)
	}

	var exporterOpts []otlptracehttp.Option
	if s.endpoint != "" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(s.endpoint))
	}
	if s.insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	otlp, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	var exp sdktrace.SpanExporter = otlp
	if s.bufferPath != "" {
		var bufOpts []BufferOption
		if s.logger != nil {
			bufOpts = append(bufOpts, WithBufferLogger(s.logger))
		}
		buffered, err := NewBufferedExporter(otlp, s.bufferPath, bufOpts...)
		if err != nil {
			_ = otlp.Shutdown(ctx)
			return nil, nil, fmt.Errorf("open span buffer: %w", err)
		}
		exp = buffered
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	shutdown := func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}
	return tp, shutdown, nil
}
