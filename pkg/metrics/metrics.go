// Package metrics wires the otel metrics API to a Prometheus exporter, the
// same combination aimuz-transy's cache layer and MatchaCake-LiveSub's
// ingest pipeline both use for their own counters.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Registry holds the interpreter's instruments. Construct one per process.
// The Stream Manager, Room Registry and Translation Fan-out take no
// Registry, and no code outside this package records into these
// instruments; cmd/interpreter-server only serves the exporter's endpoint.
type Registry struct {
	provider *sdkmetric.MeterProvider

	ActiveRooms          metric.Int64UpDownCounter
	ActiveSpeakerStreams metric.Int64UpDownCounter
	StreamRotations      metric.Int64Counter
	SentencesEmitted     metric.Int64Counter
	TranslationLatency   metric.Float64Histogram
	TranslationErrors    metric.Int64Counter
	SynthesisCacheHits    metric.Int64Counter
	SynthesisCacheMisses  metric.Int64Counter
	ProviderRetries      metric.Int64Counter
}

// New builds a Registry backed by a fresh Prometheus exporter. Call
// ServeMux's handler (or Handler()) from an HTTP listener to expose it.
func New() (*Registry, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("lokutor-interpreter")

	r := &Registry{provider: provider}

	if r.ActiveRooms, err = meter.Int64UpDownCounter("interpreter.rooms.active",
		metric.WithDescription("number of session rooms currently open")); err != nil {
		return nil, err
	}
	if r.ActiveSpeakerStreams, err = meter.Int64UpDownCounter("interpreter.speaker_streams.active",
		metric.WithDescription("number of speaker streams currently running")); err != nil {
		return nil, err
	}
	if r.StreamRotations, err = meter.Int64Counter("interpreter.speaker_streams.rotations",
		metric.WithDescription("number of STT stream rotations performed")); err != nil {
		return nil, err
	}
	if r.SentencesEmitted, err = meter.Int64Counter("interpreter.sentences.emitted",
		metric.WithDescription("number of sentences emitted by speaker streams")); err != nil {
		return nil, err
	}
	if r.TranslationLatency, err = meter.Float64Histogram("interpreter.translation.latency_seconds",
		metric.WithDescription("translation fan-out latency per language"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.TranslationErrors, err = meter.Int64Counter("interpreter.translation.errors",
		metric.WithDescription("number of translation requests that failed open")); err != nil {
		return nil, err
	}
	if r.SynthesisCacheHits, err = meter.Int64Counter("interpreter.synthesis_cache.hits",
		metric.WithDescription("synthesis cache hits")); err != nil {
		return nil, err
	}
	if r.SynthesisCacheMisses, err = meter.Int64Counter("interpreter.synthesis_cache.misses",
		metric.WithDescription("synthesis cache misses")); err != nil {
		return nil, err
	}
	if r.ProviderRetries, err = meter.Int64Counter("interpreter.provider.retries",
		metric.WithDescription("number of retry attempts issued by the retry policy")); err != nil {
		return nil, err
	}

	return r, nil
}

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the underlying meter provider.
func (r *Registry) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

// ObserveTranslation records one translation call's latency, tagged by
// target language, for the histogram above.
func (r *Registry) ObserveTranslation(ctx context.Context, lang string, d time.Duration, failed bool) {
	attrs := metric.WithAttributes(attribute.String("language", lang))
	r.TranslationLatency.Record(ctx, d.Seconds(), attrs)
	if failed {
		r.TranslationErrors.Add(ctx, 1, attrs)
	}
}
