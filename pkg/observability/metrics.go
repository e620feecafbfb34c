package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	metricSpansTotal   = "topfew.spans.total"
	metricLinesTotal   = "topfew.lines.total"
	metricMatchedTotal = "topfew.keys.matched.total"
	metricBytesTotal   = "topfew.bytes.total"
	metricSpanDuration = "topfew.span.duration.seconds"
)

// durationBucketBoundaries covers 1ms to 120s: a span is a few MiB to a few
// hundred MiB of text.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// SpanStats describes one completed span scan.
type SpanStats struct {
	Bytes    int64
	Lines    int64
	Matched  int64
	Duration time.Duration
}

// ScanMetrics holds the OTel instruments recorded by the scan pipeline.
// A nil *ScanMetrics records nothing.
type ScanMetrics struct {
	spans    metric.Int64Counter
	lines    metric.Int64Counter
	matched  metric.Int64Counter
	bytes    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewScanMetrics creates the scan instruments from mt.
func NewScanMetrics(mt metric.Meter) (*ScanMetrics, error) {
	b := newMetricBuilder(mt)

	m := &ScanMetrics{
		spans:    b.counter(metricSpansTotal, "Spans scanned", "{span}"),
		lines:    b.counter(metricLinesTotal, "Lines read", "{line}"),
		matched:  b.counter(metricMatchedTotal, "Lines that produced a key", "{line}"),
		bytes:    b.counter(metricBytesTotal, "Bytes consumed by span readers", "By"),
		duration: b.histogram(metricSpanDuration, "Per-span scan duration in seconds", "s", durationBucketBoundaries...),
	}

	if b.err != nil {
		return nil, b.err
	}

	return m, nil
}

// RecordSpan records one completed span. Safe on a nil receiver.
func (m *ScanMetrics) RecordSpan(ctx context.Context, stats SpanStats) {
	if m == nil {
		return
	}

	m.spans.Add(ctx, 1)
	m.lines.Add(ctx, stats.Lines)
	m.matched.Add(ctx, stats.Matched)
	m.bytes.Add(ctx, stats.Bytes)
	m.duration.Record(ctx, stats.Duration.Seconds())
}
