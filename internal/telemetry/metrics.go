package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/wolfeidau/rnbundle"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal      metric.Int64Counter
	BuildErrorsTotal metric.Int64Counter
	BuildDuration    metric.Float64Histogram
	StageDuration    metric.Float64Histogram
	StageErrorsTotal metric.Int64Counter

	// Graph and transform metrics
	ModulesTotal            metric.Int64Counter
	ModulesTransformedTotal metric.Int64Counter

	// Output metrics
	ChunksTotal     metric.Int64Counter
	BytesEmitted    metric.Int64Counter
	BytesCompressed metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for build stage spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	// Build metrics
	m.BuildsTotal, _ = meter.Int64Counter(
		"rnbundle.builds.total",
		metric.WithDescription("Total number of builds, by result"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"rnbundle.builds.errors.total",
		metric.WithDescription("Total number of failed builds, by stage"),
		metric.WithUnit("{error}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"rnbundle.builds.duration",
		metric.WithDescription("Duration of complete builds"),
		metric.WithUnit("ms"),
	)

	m.StageDuration, _ = meter.Float64Histogram(
		"rnbundle.stages.duration",
		metric.WithDescription("Duration of build stages, by stage"),
		metric.WithUnit("ms"),
	)

	m.StageErrorsTotal, _ = meter.Int64Counter(
		"rnbundle.stages.errors.total",
		metric.WithDescription("Total number of stage failures, by stage"),
		metric.WithUnit("{error}"),
	)

	// Graph and transform metrics
	m.ModulesTotal, _ = meter.Int64Counter(
		"rnbundle.modules.total",
		metric.WithDescription("Total number of modules loaded into build graphs"),
		metric.WithUnit("{module}"),
	)

	m.ModulesTransformedTotal, _ = meter.Int64Counter(
		"rnbundle.modules.transformed.total",
		metric.WithDescription("Total number of modules run through the transform pipeline"),
		metric.WithUnit("{module}"),
	)

	// Output metrics
	m.ChunksTotal, _ = meter.Int64Counter(
		"rnbundle.chunks.total",
		metric.WithDescription("Total number of chunks emitted, by kind"),
		metric.WithUnit("{chunk}"),
	)

	m.BytesEmitted, _ = meter.Int64Counter(
		"rnbundle.output.bytes",
		metric.WithDescription("Total size of emitted chunk files"),
		metric.WithUnit("By"),
	)

	m.BytesCompressed, _ = meter.Int64Counter(
		"rnbundle.output.compressed.bytes",
		metric.WithDescription("Total size of emitted zstd sidecars"),
		metric.WithUnit("By"),
	)

	return m
}
