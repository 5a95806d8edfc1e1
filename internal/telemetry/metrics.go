package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/wolfeidau/assetpipe"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal       metric.Int64Counter
	BuildFailures     metric.Int64Counter
	BuildDuration     metric.Float64Histogram
	PhaseDuration     metric.Float64Histogram
	ModulesDiscovered metric.Int64Counter

	// Transform metrics
	ModulesTransformed metric.Int64Counter
	StepDuration       metric.Float64Histogram
	SideOutputsTotal   metric.Int64Counter

	// Emit metrics
	ArtifactsEmitted metric.Int64Counter
	BytesEmitted     metric.Int64Counter
	NamingCollisions metric.Int64Counter

	// Runtime metrics
	ManifestLookups      metric.Int64Counter
	ManifestLookupMisses metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(otel.GetMeterProvider().Meter(instrumentationName))
	})
	return metrics
}

// NewMetrics creates all metric instruments on meter
func NewMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}

	// Build metrics
	m.BuildsTotal, _ = meter.Int64Counter(
		"assetpipe.builds.total",
		metric.WithDescription("Total number of builds started"),
		metric.WithUnit("{build}"),
	)

	m.BuildFailures, _ = meter.Int64Counter(
		"assetpipe.builds.failures.total",
		metric.WithDescription("Total number of builds that ended in the failed state"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"assetpipe.builds.duration",
		metric.WithDescription("Duration of whole builds"),
		metric.WithUnit("ms"),
	)

	m.PhaseDuration, _ = meter.Float64Histogram(
		"assetpipe.builds.phase.duration",
		metric.WithDescription("Duration of each build phase"),
		metric.WithUnit("ms"),
	)

	m.ModulesDiscovered, _ = meter.Int64Counter(
		"assetpipe.modules.discovered.total",
		metric.WithDescription("Total number of modules discovered"),
		metric.WithUnit("{module}"),
	)

	// Transform metrics
	m.ModulesTransformed, _ = meter.Int64Counter(
		"assetpipe.modules.transformed.total",
		metric.WithDescription("Total number of modules run through a transform chain"),
		metric.WithUnit("{module}"),
	)

	m.StepDuration, _ = meter.Float64Histogram(
		"assetpipe.steps.duration",
		metric.WithDescription("Duration of individual transform steps"),
		metric.WithUnit("ms"),
	)

	m.SideOutputsTotal, _ = meter.Int64Counter(
		"assetpipe.side_outputs.total",
		metric.WithDescription("Total number of side outputs diverted to extraction bundles"),
		metric.WithUnit("{fragment}"),
	)

	// Emit metrics
	m.ArtifactsEmitted, _ = meter.Int64Counter(
		"assetpipe.artifacts.emitted.total",
		metric.WithDescription("Total number of artifacts written"),
		metric.WithUnit("{artifact}"),
	)

	m.BytesEmitted, _ = meter.Int64Counter(
		"assetpipe.artifacts.bytes.total",
		metric.WithDescription("Total number of artifact bytes written"),
		metric.WithUnit("By"),
	)

	m.NamingCollisions, _ = meter.Int64Counter(
		"assetpipe.naming.collisions.total",
		metric.WithDescription("Total number of naming collisions detected"),
		metric.WithUnit("{collision}"),
	)

	// Runtime metrics
	m.ManifestLookups, _ = meter.Int64Counter(
		"assetpipe.manifest.lookups.total",
		metric.WithDescription("Total number of asset lookups served from the manifest"),
		metric.WithUnit("{lookup}"),
	)

	m.ManifestLookupMisses, _ = meter.Int64Counter(
		"assetpipe.manifest.lookups.misses.total",
		metric.WithDescription("Total number of asset lookups for unregistered keys"),
		metric.WithUnit("{lookup}"),
	)

	return m
}
