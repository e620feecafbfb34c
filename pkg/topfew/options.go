package topfew

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/topfew/pkg/observability"
)

// DefaultChunkSize is the nominal span length used when Options.ChunkSize is
// zero.
const DefaultChunkSize = 64 * humanize.MiByte

var (
	// ErrOpen is returned when the input file cannot be opened.
	ErrOpen = errors.New("topfew: open input")
	// ErrStat is returned when the input size cannot be read.
	ErrStat = errors.New("topfew: stat input")
	// ErrSpanOpen is returned when a span cannot open its own handle after
	// the initial open succeeded.
	ErrSpanOpen = errors.New("topfew: open span")
	// ErrSpanRead is returned when a span fails part way through reading.
	ErrSpanRead = errors.New("topfew: read span")
	// ErrInvalidCount is returned for a negative result count.
	ErrInvalidCount = errors.New("topfew: invalid count")
)

// File is the read-only handle a scan needs.
type File interface {
	io.ReaderAt
	io.Closer
	Stat() (fs.FileInfo, error)
}

// OpenFunc opens path for reading. Every span calls it independently.
type OpenFunc func(path string) (File, error)

func openOS(path string) (File, error) {
	return os.Open(path)
}

// Options tunes a scan. The zero value is ready to use.
type Options struct {
	// ChunkSize is the nominal span length in bytes. Zero means
	// DefaultChunkSize.
	ChunkSize int64

	// Workers bounds the number of spans scanned at once. Zero means
	// runtime.NumCPU().
	Workers int

	// Open replaces os.Open.
	Open OpenFunc

	// Logger receives one debug record per span and one info record per scan.
	Logger *slog.Logger

	// Tracer creates the topfew.scan and topfew.span spans.
	Tracer trace.Tracer

	// Metrics, when non-nil, records per-span statistics.
	Metrics *observability.ScanMetrics
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}

	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}

	if o.Open == nil {
		o.Open = openOS
	}

	if o.Logger == nil {
		o.Logger = observability.DiscardLogger()
	}

	if o.Tracer == nil {
		o.Tracer = nooptrace.NewTracerProvider().Tracer("topfew")
	}

	return o
}
