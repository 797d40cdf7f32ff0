// Package observe provides application-wide observability primitives for
// Rook: OpenTelemetry metrics, distributed tracing, and structured logging.
// The package defines an HTTP request-duration histogram but no HTTP
// middleware that records it.
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

// meterName is the instrumentation scope name used for all Rook metrics.
const meterName = "github.com/rook-mem/rook"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// IngestDuration tracks end-to-end ingestion gate latency (extraction
	// through decision).
	IngestDuration metric.Float64Histogram

	// RetrievalDuration tracks hybrid retrieval latency, per mode.
	RetrievalDuration metric.Float64Histogram

	// ContradictionDuration tracks contradiction-detector latency.
	ContradictionDuration metric.Float64Histogram

	// ConsolidationSweepDuration tracks one full consolidation sweep.
	ConsolidationSweepDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// IngestDecisions counts ingestion gate outcomes. Use with attribute:
	//   attribute.String("kind", ...) — one of skipped, created, updated, superseded
	IngestDecisions metric.Int64Counter

	// ContradictionVerdicts counts contradiction-detector outcomes. Use with attributes:
	//   attribute.String("verdict", ...), attribute.Int("layer", ...)
	ContradictionVerdicts metric.Int64Counter

	// MemoriesArchived counts memories archived by the consolidation sweep.
	MemoriesArchived metric.Int64Counter

	// MemoriesPromoted counts memories promoted (storage strength boosted)
	// by the consolidation sweep.
	MemoriesPromoted metric.Int64Counter

	// IntentionsFired counts intention triggers that fired.
	IntentionsFired metric.Int64Counter

	// WebhookDeliveries counts webhook delivery attempts. Use with attribute:
	//   attribute.String("status", ...) — one of "ok", "failed"
	WebhookDeliveries metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveIntentions tracks the number of currently registered intentions.
	ActiveIntentions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for in-process retrieval and ingestion latencies.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.IngestDuration, err = m.Float64Histogram("rook.ingest.duration",
		metric.WithDescription("Latency of the ingestion gate, extraction through decision."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("rook.retrieval.duration",
		metric.WithDescription("Latency of the hybrid retrieval pipeline, by mode."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ContradictionDuration, err = m.Float64Histogram("rook.contradiction.duration",
		metric.WithDescription("Latency of the contradiction detector."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConsolidationSweepDuration, err = m.Float64Histogram("rook.consolidation.sweep_duration",
		metric.WithDescription("Duration of one consolidation sweep."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("rook.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.IngestDecisions, err = m.Int64Counter("rook.ingest.decisions",
		metric.WithDescription("Total ingestion gate decisions by kind."),
	); err != nil {
		return nil, err
	}
	if met.ContradictionVerdicts, err = m.Int64Counter("rook.contradiction.verdicts",
		metric.WithDescription("Total contradiction detector verdicts by verdict and layer."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesArchived, err = m.Int64Counter("rook.consolidation.archived",
		metric.WithDescription("Total memories archived by the consolidation sweep."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesPromoted, err = m.Int64Counter("rook.consolidation.promoted",
		metric.WithDescription("Total memories promoted by the consolidation sweep."),
	); err != nil {
		return nil, err
	}
	if met.IntentionsFired, err = m.Int64Counter("rook.intention.fired",
		metric.WithDescription("Total intention triggers that fired."),
	); err != nil {
		return nil, err
	}
	if met.WebhookDeliveries, err = m.Int64Counter("rook.eventbus.webhook_deliveries",
		metric.WithDescription("Total webhook delivery attempts by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("rook.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveIntentions, err = m.Int64UpDownCounter("rook.intention.active",
		metric.WithDescription("Number of currently registered intentions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("rook.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordIngestDecision is a convenience method that records an ingest
// decision counter increment.
func (m *Metrics) RecordIngestDecision(ctx context.Context, kind string) {
	m.IngestDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordContradictionVerdict is a convenience method that records a
// contradiction detector verdict counter increment.
func (m *Metrics) RecordContradictionVerdict(ctx context.Context, verdict string, layer int) {
	m.ContradictionVerdicts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verdict", verdict),
			attribute.Int("layer", layer),
		),
	)
}

// RecordWebhookDelivery is a convenience method that records a webhook
// delivery attempt counter increment.
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, status string) {
	m.WebhookDeliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
