// Package metrics wires OpenTelemetry instrumentation for the edge server:
// a Prometheus-backed MeterProvider plus the counters and histograms the
// audio pipeline records against. Grounded on
// MrWong99-glyphoxa/internal/observe (metrics.go, provider.go): same
// Init/shutdown shape, same "one histogram per pipeline stage, counters for
// provider calls and errors, gauges for live session counts" layout,
// adapted from Glyphoxa's NPC-voice domain to this server's device-session
// domain.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/session"
)

const meterName = "github.com/lokutor-ai/xiaozhi-edge-server"

// latencyBuckets are histogram bucket boundaries, in seconds, sized for the
// sub-second provider round trips and multi-second full-turn latencies this
// server records.
var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds every OTel instrument this server records. All fields are
// safe for concurrent use.
type Metrics struct {
	// VADDecisionDuration tracks per-frame VAD evaluation latency.
	VADDecisionDuration metric.Float64Histogram
	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram
	// IdentificationDuration tracks speaker-identification latency.
	IdentificationDuration metric.Float64Histogram
	// LLMDuration tracks time from turn dispatch to the final LLM token.
	LLMDuration metric.Float64Histogram
	// TTSDuration tracks time from the turn's first synthesized audio chunk
	// to the end of the turn's synthesis.
	TTSDuration metric.Float64Histogram
	// TurnDuration tracks end-to-end latency from end-of-speech to turn end.
	TurnDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter
	// ProviderErrors counts provider API failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter
	// UtterancesTotal counts completed end-of-speech utterances. Attribute: stop_cause.
	UtterancesTotal metric.Int64Counter
	// BargeInsTotal counts user interruptions of an in-flight turn.
	BargeInsTotal metric.Int64Counter

	// ActiveSessions tracks the number of live device WebSocket connections.
	ActiveSessions metric.Int64UpDownCounter
}

// NewMetrics creates a fully initialized Metrics struct against the given
// MeterProvider. Returns an error if any instrument registration fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.VADDecisionDuration, err = m.Float64Histogram("edge.vad.decision.duration",
		metric.WithDescription("Latency of a single VAD frame evaluation."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("edge.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.IdentificationDuration, err = m.Float64Histogram("edge.identification.duration",
		metric.WithDescription("Latency of speaker identification."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("edge.llm.duration",
		metric.WithDescription("Latency of LLM reply generation."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("edge.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("edge.turn.duration",
		metric.WithDescription("End-to-end latency from end-of-speech to turn end."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("edge.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status.")); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("edge.provider.errors",
		metric.WithDescription("Total provider API errors by provider and kind.")); err != nil {
		return nil, err
	}
	if met.UtterancesTotal, err = m.Int64Counter("edge.utterances.total",
		metric.WithDescription("Total completed utterances by stop cause.")); err != nil {
		return nil, err
	}
	if met.BargeInsTotal, err = m.Int64Counter("edge.barge_ins.total",
		metric.WithDescription("Total barge-in interruptions of an in-flight turn.")); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("edge.active_sessions",
		metric.WithDescription("Number of live device WebSocket sessions.")); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialized package-level instance cmd/server
// constructs once at startup and every session shares thereafter.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the package-level Metrics instance, creating it against
// the global MeterProvider on first call. Panics if instrument creation
// fails, which should not happen against the global provider.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default instruments: " + err.Error())
		}
	})
	return defaultMetrics
}

// ProviderConfig configures the OTel SDK providers InitProvider builds.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
}

// InitProvider installs a Prometheus-backed global MeterProvider and
// returns a shutdown func to flush and close it from a deferred call in
// main(). cmd/server serves /metrics by registering promhttp.Handler (the
// Prometheus default registry this exporter publishes to) on its own
// listener at Server.MetricsAddr, separate from the OTA and WebSocket routes.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "xiaozhi-edge-server"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// RecordProviderRequest records one provider call outcome with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError records one provider failure with the standard
// attribute set.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordUtterance records one completed end-of-speech utterance tagged with
// the eos.Controller stop cause that ended it.
func (m *Metrics) RecordUtterance(ctx context.Context, stopCause string) {
	m.UtterancesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stop_cause", stopCause)))
}

// RecordLatencyBreakdown feeds one completed turn's per-stage timings into
// the STT/LLM/TTS/turn histograms. Stages with no recorded marks (bd field
// is zero) are skipped rather than recording a misleading zero sample.
func (m *Metrics) RecordLatencyBreakdown(ctx context.Context, bd session.LatencyBreakdown) {
	if bd.STT > 0 {
		m.STTDuration.Record(ctx, float64(bd.STT)/1000)
	}
	if bd.LLM > 0 {
		m.LLMDuration.Record(ctx, float64(bd.LLM)/1000)
	}
	if bd.TTSTotal > 0 {
		m.TTSDuration.Record(ctx, float64(bd.TTSTotal)/1000)
	}
	if bd.TurnTotal > 0 {
		m.TurnDuration.Record(ctx, float64(bd.TurnTotal)/1000)
	}
}
