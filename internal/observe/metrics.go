// Package observe provides application-wide observability primitives for
// nlpcore: OpenTelemetry metrics, tracing, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all nlpcore metrics.
const meterName = "github.com/karen-ai/nlpcore"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per operation ---

	// ParseDuration tracks text parsing latency.
	ParseDuration metric.Float64Histogram

	// EmbedDuration tracks embedding generation latency.
	EmbedDuration metric.Float64Histogram

	// --- Counters ---

	// CacheLookups counts result cache lookups. Use with attributes:
	//   attribute.String("service", ...), attribute.String("outcome", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// FallbackCalls counts calls served by a fallback path. Use with attribute:
	//   attribute.String("service", ...)
	FallbackCalls metric.Int64Counter

	// ServiceErrors counts per-call processing failures. Use with attribute:
	//   attribute.String("service", ...)
	ServiceErrors metric.Int64Counter

	// RecoveryAttempts counts automated recovery attempts triggered by the
	// health monitor.
	RecoveryAttempts metric.Int64Counter

	// --- Gauges ---

	// Ready tracks system readiness (1 ready, 0 not ready).
	Ready metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for in-process NLP call latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ParseDuration, err = m.Float64Histogram("nlpcore.parse.duration",
		metric.WithDescription("Latency of text parsing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("nlpcore.embed.duration",
		metric.WithDescription("Latency of embedding generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CacheLookups, err = m.Int64Counter("nlpcore.cache.lookups",
		metric.WithDescription("Total result cache lookups by service and outcome."),
	); err != nil {
		return nil, err
	}
	if met.FallbackCalls, err = m.Int64Counter("nlpcore.fallback.calls",
		metric.WithDescription("Total calls served by a fallback path, by service."),
	); err != nil {
		return nil, err
	}
	if met.ServiceErrors, err = m.Int64Counter("nlpcore.service.errors",
		metric.WithDescription("Total per-call processing failures by service."),
	); err != nil {
		return nil, err
	}
	if met.RecoveryAttempts, err = m.Int64Counter("nlpcore.recovery.attempts",
		metric.WithDescription("Total automated recovery attempts triggered by the health monitor."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.Ready, err = m.Int64UpDownCounter("nlpcore.ready",
		metric.WithDescription("System readiness (1 ready, 0 not ready)."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("nlpcore.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordCacheLookup records a cache lookup outcome ("hit" or "miss") for a
// service.
func (m *Metrics) RecordCacheLookup(ctx context.Context, service, outcome string) {
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("service", service),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordFallback records a call served by a service's fallback path.
func (m *Metrics) RecordFallback(ctx context.Context, service string) {
	m.FallbackCalls.Add(ctx, 1,
		metric.WithAttributes(attribute.String("service", service)),
	)
}

// RecordServiceError records a per-call processing failure for a service.
func (m *Metrics) RecordServiceError(ctx context.Context, service string) {
	m.ServiceErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("service", service)),
	)
}
