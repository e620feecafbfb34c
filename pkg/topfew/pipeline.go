// Package topfew finds the most frequent keys in a large file.
//
// The file is cut into line-aligned spans that are scanned concurrently by a
// bounded worker pool. Every span counts its keys exactly; the exact counts
// are folded per worker, reduced pairwise across workers, and only the last
// merge into a capacity-bounded accumulator is approximate.
package topfew

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/topfew/pkg/keyfinder"
	"github.com/Sumatoshi-tech/topfew/pkg/observability"
	"github.com/Sumatoshi-tech/topfew/pkg/safeconv"
	"github.com/Sumatoshi-tech/topfew/pkg/span"
	"github.com/Sumatoshi-tech/topfew/pkg/topk"
)

// cancelCheckLines is how many lines a span reads between context checks.
const cancelCheckLines = 4096

// Stats summarizes a scan.
type Stats struct {
	Bytes   int64 // Input size.
	Spans   int
	Lines   int64
	Matched int64 // Lines that produced a key.
	Keys    int   // Distinct keys counted.
}

func (s *Stats) add(o Stats) {
	s.Bytes += o.Bytes
	s.Spans += o.Spans
	s.Lines += o.Lines
	s.Matched += o.Matched
}

// Result is the ranked output of a scan.
type Result struct {
	Top   []topk.KeyCount
	Stats Stats
}

// Top returns up to n of the most frequent keys policy finds in the file at
// path, ordered by count descending, then key descending.
func Top(ctx context.Context, path string, policy keyfinder.Policy, n int, opts Options) ([]topk.KeyCount, error) {
	res, err := Scan(ctx, path, policy, n, opts)
	if err != nil {
		return nil, err
	}

	return res.Top, nil
}

// Scan is Top with scan statistics.
func Scan(ctx context.Context, path string, policy keyfinder.Policy, n int, opts Options) (Result, error) {
	if n < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}

	opts = opts.withDefaults()

	ctx, sp := opts.Tracer.Start(ctx, "topfew.scan", trace.WithAttributes(
		attribute.String("topfew.path", path),
		attribute.Int("topfew.count", n),
	))
	defer sp.End()

	res, err := scan(ctx, path, policy, n, opts)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "scan failed")

		return Result{}, err
	}

	sp.SetAttributes(
		attribute.Int("scan.spans", res.Stats.Spans),
		attribute.Int64("scan.lines", res.Stats.Lines),
		attribute.Int("scan.keys", res.Stats.Keys),
	)

	return res, nil
}

func scan(ctx context.Context, path string, policy keyfinder.Policy, n int, opts Options) (Result, error) {
	began := time.Now()

	size, err := inputSize(path, opts.Open)
	if err != nil {
		return Result{}, err
	}

	if n == 0 {
		return Result{Top: []topk.KeyCount{}, Stats: Stats{Bytes: size}}, nil
	}

	spans := span.Plan(opts.ChunkSize, size)
	workers := min(opts.Workers, len(spans))

	folds, stats, err := scanSpans(ctx, path, spans, policy, workers, opts)
	if err != nil {
		return Result{}, err
	}

	total := reduce(folds)

	final := topk.New(n)
	final.Merge(total)

	stats.Bytes = size
	stats.Keys = total.Len()

	opts.Logger.InfoContext(ctx, "scan complete",
		"path", path,
		"size", humanize.Bytes(safeconv.MustInt64ToUint64(size)),
		"spans", stats.Spans,
		"workers", workers,
		"lines", stats.Lines,
		"keys", stats.Keys,
		"elapsed", time.Since(began),
	)

	return Result{Top: final.Top(), Stats: stats}, nil
}

// inputSize opens path once to learn its length. Failures here are fatal.
func inputSize(path string, open OpenFunc) (int64, error) {
	f, err := open(path)
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", ErrOpen, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", ErrStat, path, err)
	}

	return info.Size(), nil
}

// scanSpans runs the worker pool. Each worker pulls spans from a channel and
// folds every per-span exact accumulator into its own exact fold. The first
// error cancels the remaining work.
func scanSpans(
	ctx context.Context, path string, spans []span.Span, policy keyfinder.Policy, workers int, opts Options,
) ([]*topk.Accumulator, Stats, error) {
	g, gctx := errgroup.WithContext(ctx)
	work := make(chan span.Span)

	g.Go(func() error {
		defer close(work)

		for _, s := range spans {
			select {
			case work <- s:
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		return nil
	})

	folds := make([]*topk.Accumulator, workers)
	perWorker := make([]Stats, workers)

	for w := range workers {
		g.Go(func() error {
			fold := topk.New(0)

			for s := range work {
				acc, st, err := scanSpan(gctx, path, s, policy, opts)
				if err != nil {
					return err
				}

				fold.Merge(acc)
				perWorker[w].add(st)
			}

			folds[w] = fold

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, Stats{}, err
	}

	var stats Stats
	for _, st := range perWorker {
		stats.add(st)
	}

	return folds, stats, nil
}

// scanSpan counts the keys of one span into a fresh exact accumulator,
// through a file handle of its own.
func scanSpan(
	ctx context.Context, path string, s span.Span, policy keyfinder.Policy, opts Options,
) (*topk.Accumulator, Stats, error) {
	ctx, sp := opts.Tracer.Start(ctx, "topfew.span", trace.WithAttributes(
		attribute.Int64("span.start", s.Start),
		attribute.Int64("span.end", s.End),
	))
	defer sp.End()

	began := time.Now()

	acc, st, err := countSpan(ctx, path, s, policy, opts.Open)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "span failed")

		return nil, Stats{}, err
	}

	elapsed := time.Since(began)

	sp.SetAttributes(attribute.Int64("span.lines", st.Lines))

	opts.Logger.DebugContext(ctx, "span scanned",
		"start", s.Start,
		"end", s.End,
		"bytes", st.Bytes,
		"lines", st.Lines,
		"matched", st.Matched,
		"elapsed", elapsed,
	)

	opts.Metrics.RecordSpan(ctx, observability.SpanStats{
		Bytes:    st.Bytes,
		Lines:    st.Lines,
		Matched:  st.Matched,
		Duration: elapsed,
	})

	return acc, st, nil
}

func countSpan(
	ctx context.Context, path string, s span.Span, policy keyfinder.Policy, open OpenFunc,
) (*topk.Accumulator, Stats, error) {
	err := ctx.Err()
	if err != nil {
		return nil, Stats{}, err
	}

	f, err := open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w [%d,%d) of %s: %w", ErrSpanOpen, s.Start, s.End, path, err)
	}
	defer f.Close()

	r := span.NewReader(f, s)

	acc, st, err := countLines(ctx, r, policy)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("span [%d,%d) of %s: %w", s.Start, s.End, path, err)
	}

	st.Bytes = r.Offset() - r.Start()

	return acc, st, nil
}

// countLines counts the keys of every line r yields into a fresh exact
// accumulator, checking ctx every cancelCheckLines lines. The caller fills in
// Stats.Bytes.
func countLines(ctx context.Context, r *span.Reader, policy keyfinder.Policy) (*topk.Accumulator, Stats, error) {
	acc := topk.New(0)
	st := Stats{Spans: 1}

	var key []byte

	for r.Next() {
		st.Lines++

		if st.Lines%cancelCheckLines == 0 {
			if err := ctx.Err(); err != nil {
				return nil, Stats{}, err
			}
		}

		var ok bool

		key, ok = policy.AppendKey(key[:0], r.Line())
		if ok {
			acc.AddBytes(key, 1)
			st.Matched++
		}
	}

	err := r.Err()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w: %w", ErrSpanRead, err)
	}

	return acc, st, nil
}
