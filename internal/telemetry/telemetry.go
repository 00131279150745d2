// Package telemetry sets up the global OpenTelemetry providers and
// holds the instruments shared across the poll loop: a span per poll
// cycle, counters for retries and conflicts, and the lock-wait
// histogram the job-side subprocess client reports into. Every
// adapter package (issuestore, jobstore) still registers its own
// tracer/meter the way dolt's storage backend does in isolation; this
// package exists only for the cross-cutting instruments the poll loop
// itself produces, and for wiring the global provider so that those
// package-local instruments stop being no-ops.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/replicateio/tbridge"

// tracer and meter are package-level, matching the per-package
// otel.Tracer/otel.Meter var pattern used throughout the adapters;
// they forward to the global provider, a no-op until Init runs.
var tracer = otel.Tracer(instrumentationName)

var instruments struct {
	retryCount    metric.Int64Counter
	conflictCount metric.Int64Counter
	lockWaitMs    metric.Float64Histogram
	throttlePoll  metric.Float64Histogram
}

func init() {
	initInstruments()
}

// Option configures Init's exporter choice.
type Option func(*initConfig)

type initConfig struct {
	otlpEndpoint string
	stdout       bool
}

// WithOTLPEndpoint sends spans and metrics to the given OTLP/HTTP
// collector endpoint instead of stdout.
func WithOTLPEndpoint(endpoint string) Option {
	return func(c *initConfig) { c.otlpEndpoint = endpoint }
}

// WithStdout writes spans and metrics to stdout, the default when no
// endpoint is configured; useful for local runs and CLI invocations
// that want human-visible telemetry without a collector.
func WithStdout() Option {
	return func(c *initConfig) { c.stdout = true }
}

// Init installs global trace and meter providers so every package's
// otel.Tracer/otel.Meter calls stop returning no-ops. Callers should
// defer the returned shutdown func.
func Init(ctx context.Context, rid string, opts ...Option) (shutdown func(context.Context) error, err error) {
	cfg := initConfig{stdout: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName("tbridge"),
		semconv.ServiceInstanceID(rid),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var shutdowns []func(context.Context) error

	if cfg.otlpEndpoint != "" {
		metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.otlpEndpoint))
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	} else {
		metricExp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	traceExp, err := stdouttrace.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp),
	)
	otel.SetTracerProvider(tp)
	shutdowns = append(shutdowns, tp.Shutdown)

	// Re-register the package-level instruments against the now-real
	// providers; they were created against the global no-op delegate
	// at package init time, same as dolt's doltMetrics/doltTracer.
	tracer = otel.Tracer(instrumentationName)
	initInstruments()

	return func(ctx context.Context) error {
		var firstErr error
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}

func initInstruments() {
	m := otel.Meter(instrumentationName)
	instruments.retryCount, _ = m.Int64Counter("tbridge.poll.retry_count",
		metric.WithDescription("poll cycles that failed and were retried after a back-off delay"),
		metric.WithUnit("{retry}"),
	)
	instruments.conflictCount, _ = m.Int64Counter("tbridge.poll.conflict_count",
		metric.WithDescription("issue/job pairs that changed on both sides in the same poll cycle"),
		metric.WithUnit("{conflict}"),
	)
	instruments.lockWaitMs, _ = m.Float64Histogram("tbridge.jobstore.lock_wait_ms",
		metric.WithDescription("time spent waiting for the job store subprocess to respond"),
		metric.WithUnit("ms"),
	)
	instruments.throttlePoll, _ = m.Float64Histogram("tbridge.poll.period_ms",
		metric.WithDescription("poll period in effect at the start of each cycle"),
		metric.WithUnit("ms"),
	)
}

// StartPollSpan opens the span that wraps one full poll cycle.
func StartPollSpan(ctx context.Context, rid string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tbridge.poll",
		trace.WithAttributes(semconv.ServiceInstanceID(rid)),
	)
}

// RecordRetry increments the retry counter once per failed-then-retried poll cycle.
func RecordRetry(ctx context.Context) {
	instruments.retryCount.Add(ctx, 1)
}

// RecordConflict increments the conflict counter once per issue/job
// pair resolved by the configured conflict policy.
func RecordConflict(ctx context.Context) {
	instruments.conflictCount.Add(ctx, 1)
}

// RecordLockWait reports how long the job store subprocess client
// waited for a response, in milliseconds.
func RecordLockWait(ctx context.Context, ms float64) {
	instruments.lockWaitMs.Record(ctx, ms)
}

// RecordPollPeriod reports the poll period in effect at the start of
// a cycle, in milliseconds, so throttle growth is visible externally.
func RecordPollPeriod(ctx context.Context, ms float64) {
	instruments.throttlePoll.Record(ctx, ms)
}
