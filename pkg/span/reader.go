package span

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"math"
)

const (
	lineTerminator = '\n'
	carriageReturn = '\r'

	// readBufferSize is the bufio buffer per span reader. Lines longer than
	// this are assembled in an owned buffer instead of being truncated.
	readBufferSize = 64 * 1024
)

// Reader yields the lines of one span. A zero Reader is not usable; create one
// with NewReader.
//
// Reader owns a buffered stream positioned at the span's nominal start and a
// byte counter. Lines are pulled with Next and read with Line, in the manner
// of bufio.Scanner:
//
//	r := span.NewReader(f, s)
//	for r.Next() {
//		use(r.Line())
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	br    *bufio.Reader
	start int64 // Resolved start: first byte of the first owned line.
	pos   int64 // Absolute offset of the next unread byte.
	end   int64
	line  []byte
	long  []byte // Assembly buffer for lines longer than the bufio buffer.
	err   error
}

// NewReader returns a Reader over the lines owned by s in src.
//
// If s.Start lands inside a line (the byte before it is not a line
// terminator) the partial line is skipped: it belongs to the preceding span.
// When the single-byte probe itself fails the reader assumes no skip is
// needed. Reading continues past s.End until the line that straddles it is
// complete.
func NewReader(src io.ReaderAt, s Span) *Reader {
	r := &Reader{
		br:  bufio.NewReaderSize(io.NewSectionReader(src, s.Start, math.MaxInt64-s.Start), readBufferSize),
		pos: s.Start,
		end: s.End,
	}

	if needsSkip(src, s.Start) {
		n, err := r.skipLine()
		r.pos += n
		r.setErr(err)
	}

	r.start = r.pos

	return r
}

// NewStreamReader returns a Reader over every line of a sequential stream
// such as stdin. The stream is treated as one span starting at offset 0 with
// no upper bound.
func NewStreamReader(src io.Reader) *Reader {
	return &Reader{
		br:  bufio.NewReaderSize(src, readBufferSize),
		end: math.MaxInt64,
	}
}

// needsSkip reports whether start lands mid-line. Probe failures are
// tolerated as "no skip".
func needsSkip(src io.ReaderAt, start int64) bool {
	if start <= 0 {
		return false
	}

	var probe [1]byte

	n, err := src.ReadAt(probe[:], start-1)
	if n != 1 || (err != nil && !errors.Is(err, io.EOF)) {
		return false
	}

	return probe[0] != lineTerminator
}

// Next advances to the next line of the span. It returns false once the byte
// counter reaches the span end, the stream is exhausted, or a read error
// occurs. A line cut short by a read error is not delivered.
func (r *Reader) Next() bool {
	r.line = nil

	if r.err != nil || r.pos >= r.end {
		return false
	}

	line, n, err := r.readLine()
	if n == 0 || (err != nil && !errors.Is(err, io.EOF)) {
		r.setErr(err)

		return false
	}

	r.pos += n
	r.line = trimTerminator(line)
	r.setErr(err)

	return true
}

// Line returns the current line without its terminator. The slice is only
// valid until the next call to Next.
func (r *Reader) Line() []byte {
	return r.line
}

// Start returns the resolved start offset: the nominal start, moved past any
// partial leading line.
func (r *Reader) Start() int64 {
	return r.start
}

// Offset returns the absolute offset just past the last byte consumed.
func (r *Reader) Offset() int64 {
	return r.pos
}

// Err returns the first non-EOF read error encountered.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) setErr(err error) {
	if err == nil || errors.Is(err, io.EOF) || r.err != nil {
		return
	}

	r.err = err
}

// readLine reads up to and including the next terminator and reports how
// many bytes were consumed.
func (r *Reader) readLine() ([]byte, int64, error) {
	r.long = r.long[:0]

	for {
		frag, err := r.br.ReadSlice(lineTerminator)
		if errors.Is(err, bufio.ErrBufferFull) {
			r.long = append(r.long, frag...)

			continue
		}

		if len(r.long) == 0 {
			return frag, int64(len(frag)), err
		}

		r.long = append(r.long, frag...)

		return r.long, int64(len(r.long)), err
	}
}

// skipLine discards bytes up to and including the next terminator.
func (r *Reader) skipLine() (int64, error) {
	var skipped int64

	for {
		frag, err := r.br.ReadSlice(lineTerminator)
		skipped += int64(len(frag))

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		return skipped, err
	}
}

func trimTerminator(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{lineTerminator})

	return bytes.TrimSuffix(line, []byte{carriageReturn})
}
