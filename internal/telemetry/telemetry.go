// Package telemetry wires opentelemetry tracing and Prometheus metrics for
// the ingestion service, grounded on yungbote-neurobridge-backend's
// internal/observability/otel.go tracer-provider setup (simplified to the
// sdk packages this module's go.mod actually carries, with no OTLP
// exporter wired) and AKJUS-bsc-erigon's client_golang usage.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls resource attribution and trace sampling.
type Config struct {
	ServiceName string
	Environment string
	SampleRatio float64
}

// InitTracing installs a process-wide TracerProvider sampling at
// cfg.SampleRatio (default 1.0, i.e. always-on, matching the original's
// lack of any sampling knob) and returns a shutdown func to flush spans on
// exit. With no OTLP/stdout exporter in this module's dependency set,
// spans are recorded but not exported — the hook point a real deployment
// wires an exporter into.
func InitTracing(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ingestion"
	}
	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1.0
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the named tracer from the globally-installed provider,
// the way every stage in internal/pipeline/internal/flow should obtain one
// for its span around an external call.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Metrics bundles the Prometheus collectors the DAG stages and HTTP layer
// increment, registered once at process start via promauto's default
// registry (spec.md's Non-goals exclude a dashboard, not instrumentation
// itself — see SPEC_FULL.md ambient stack).
type Metrics struct {
	StageDuration   *prometheus.HistogramVec
	StageFailures   *prometheus.CounterVec
	ArtifactsPersisted *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

// NewMetrics registers the collector set against the process-wide default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return NewMetricsOn(prometheus.DefaultRegisterer)
}

// NewMetricsOn registers against an explicit registerer, letting tests use
// a fresh prometheus.NewRegistry() instead of panicking on a
// double-registration against the global default.
func NewMetricsOn(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ingestion",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock time spent executing one DAG stage for one video.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "stage_failures_total",
			Help:      "Count of DAG stage executions that returned an error.",
		}, []string{"stage"}),
		ArtifactsPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "artifacts_persisted_total",
			Help:      "Count of artifacts written through persist.Visitor, by artifact type.",
		}, []string{"artifact_type"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests served, by route and status class.",
		}, []string{"route", "status_class"}),
	}
}
