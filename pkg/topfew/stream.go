package topfew

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/topfew/pkg/keyfinder"
	"github.com/Sumatoshi-tech/topfew/pkg/observability"
	"github.com/Sumatoshi-tech/topfew/pkg/span"
	"github.com/Sumatoshi-tech/topfew/pkg/topk"
)

// FromReader ranks the keys of a non-seekable stream such as stdin. The
// stream is read sequentially as a single span; Workers, ChunkSize and Open
// are ignored.
func FromReader(ctx context.Context, src io.Reader, policy keyfinder.Policy, n int, opts Options) (Result, error) {
	if n < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}

	opts = opts.withDefaults()

	ctx, sp := opts.Tracer.Start(ctx, "topfew.stream", trace.WithAttributes(attribute.Int("topfew.count", n)))
	defer sp.End()

	began := time.Now()

	r := span.NewStreamReader(src)

	acc, st, err := countLines(ctx, r, policy)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "stream failed")

		return Result{}, err
	}

	st.Bytes = r.Offset()

	elapsed := time.Since(began)
	st.Keys = acc.Len()

	opts.Metrics.RecordSpan(ctx, observability.SpanStats{
		Bytes:    st.Bytes,
		Lines:    st.Lines,
		Matched:  st.Matched,
		Duration: elapsed,
	})

	opts.Logger.InfoContext(ctx, "stream complete",
		"lines", st.Lines,
		"keys", st.Keys,
		"elapsed", elapsed,
	)

	sp.SetAttributes(attribute.Int64("scan.lines", st.Lines), attribute.Int("scan.keys", st.Keys))

	if n == 0 {
		return Result{Top: []topk.KeyCount{}, Stats: st}, nil
	}

	final := topk.New(n)
	final.Merge(acc)

	return Result{Top: final.Top(), Stats: st}, nil
}
