// Package telemetry wires up the Prometheus exporter and the optional
// OpenTelemetry trace pipeline.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"advoid/pkg/config"
	"advoid/pkg/logging"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "advoid"

// Telemetry holds telemetry providers and exporters.
type Telemetry struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	registry       *promclient.Registry
	exporterServer *http.Server
	logger         *logging.Logger
}

// Metrics holds all application instruments. Counter names are chosen so
// the Prometheus rendition is exactly dns_requests_total / dns_requests_block
// / dns_requests_forward, with total = block + forward at all times.
type Metrics struct {
	RequestsTotal     metric.Int64Counter
	RequestsBlocked   metric.Int64Counter
	RequestsForwarded metric.Int64Counter

	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	SinkEventsDropped metric.Int64Counter
}

// New creates a Telemetry instance serving /metrics on the exporter address
// and, when an OTLP endpoint is configured, exporting traces to it.
func New(ctx context.Context, cfg *config.Config, version string, logger *logging.Logger) (*Telemetry, error) {
	t := &Telemetry{
		logger:         logger,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := t.setupMetrics(cfg.Exporter, res); err != nil {
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	if cfg.OTELEndpoint != "" {
		if err := t.setupTracing(ctx, cfg.OTELEndpoint, res); err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
	}

	logger.Info("Telemetry initialized",
		"exporter", cfg.Exporter,
		"otel", cfg.OTELEndpoint != "",
	)

	return t, nil
}

// setupMetrics builds the otel meter provider backed by a Prometheus
// exporter and starts the /metrics HTTP server. Counter suffixes are
// disabled so the instrument names map 1:1 onto the exported series.
func (t *Telemetry) setupMetrics(addr string, res *resource.Resource) error {
	t.registry = promclient.NewRegistry()

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(t.registry),
		otelprom.WithoutCounterSuffixes(),
		otelprom.WithoutUnits(),
		otelprom.WithoutScopeInfo(),
		otelprom.WithoutTargetInfo(),
	)
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	t.meterProvider = provider
	otel.SetMeterProvider(provider)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))

	t.exporterServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := t.exporterServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.logger.Error("Prometheus exporter server failed", "error", err)
		}
	}()

	return nil
}

// setupTracing points the trace pipeline at an OTLP/HTTP collector.
func (t *Telemetry) setupTracing(ctx context.Context, endpoint string, res *resource.Resource) error {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	t.tracerProvider = provider
	otel.SetTracerProvider(provider)

	t.logger.Info("Tracing enabled", "endpoint", endpoint)
	return nil
}

// InitMetrics initializes and returns all application instruments.
func (t *Telemetry) InitMetrics() (*Metrics, error) {
	meter := t.meterProvider.Meter(serviceName)

	requestsTotal, err := meter.Int64Counter(
		"dns.requests.total",
		metric.WithDescription("Total number of DNS queries received"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	requestsBlocked, err := meter.Int64Counter(
		"dns.requests.block",
		metric.WithDescription("DNS queries answered with a synthetic negative response"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create block counter: %w", err)
	}

	requestsForwarded, err := meter.Int64Counter(
		"dns.requests.forward",
		metric.WithDescription("DNS queries forwarded to the upstream resolver"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward counter: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"dns.cache.hit",
		metric.WithDescription("Decision cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hit counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"dns.cache.miss",
		metric.WithDescription("Decision cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache miss counter: %w", err)
	}

	sinkDropped, err := meter.Int64Counter(
		"sink.events.dropped",
		metric.WithDescription("Events dropped because a sink channel was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink dropped counter: %w", err)
	}

	return &Metrics{
		RequestsTotal:     requestsTotal,
		RequestsBlocked:   requestsBlocked,
		RequestsForwarded: requestsForwarded,
		CacheHits:         cacheHits,
		CacheMisses:       cacheMisses,
		SinkEventsDropped: sinkDropped,
	}, nil
}

// NoopMetrics returns instruments backed by the noop provider, for tests and
// for components constructed before telemetry is up.
func NoopMetrics() *Metrics {
	meter := metricnoop.NewMeterProvider().Meter(serviceName)
	total, _ := meter.Int64Counter("dns.requests.total")
	blocked, _ := meter.Int64Counter("dns.requests.block")
	forwarded, _ := meter.Int64Counter("dns.requests.forward")
	hits, _ := meter.Int64Counter("dns.cache.hit")
	misses, _ := meter.Int64Counter("dns.cache.miss")
	dropped, _ := meter.Int64Counter("sink.events.dropped")
	return &Metrics{
		RequestsTotal:     total,
		RequestsBlocked:   blocked,
		RequestsForwarded: forwarded,
		CacheHits:         hits,
		CacheMisses:       misses,
		SinkEventsDropped: dropped,
	}
}

// MeterProvider returns the meter provider.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// TracerProvider returns the tracer provider.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// Gather exposes the Prometheus registry, used by tests to read back the
// exported series.
func (t *Telemetry) Gather() promclient.Gatherer {
	return t.registry
}

// Shutdown gracefully shuts down telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.exporterServer != nil {
		if err := t.exporterServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("exporter server shutdown: %w", err))
		}
	}

	if provider, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		if err := provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if provider, ok := t.tracerProvider.(*sdktrace.TracerProvider); ok {
		if err := provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown errors: %v", errs)
	}

	t.logger.Info("Telemetry shut down")
	return nil
}
