package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ProbeBuildResource exposes buildResource for testing.
func ProbeBuildResource(cfg Config) (*resource.Resource, error) {
	return buildResource(cfg)
}

// ProbeInitWithWriter exposes Init with a custom log destination.
func ProbeInitWithWriter(cfg Config, w io.Writer) (Providers, error) {
	return initWithWriter(cfg, w)
}

// ProbeSamplerSpan starts one root span under the sampler resolved from cfg
// and reports whether it was sampled.
func ProbeSamplerSpan(cfg Config) bool {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(selectSampler(cfg)),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "probe")
	span.End()

	// Shutdown clears the exporter.
	sampled := len(exporter.GetSpans()) > 0

	if err := tp.Shutdown(context.Background()); err != nil {
		return false
	}

	return sampled
}
