package span_test

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/topfew/pkg/span"
)

// readAll returns the lines of every planned span, in span order.
func readAll(t *testing.T, src io.ReaderAt, size, chunk int64) [][]string {
	t.Helper()

	spans := span.Plan(chunk, size)
	out := make([][]string, len(spans))

	for i, s := range spans {
		r := span.NewReader(src, s)

		for r.Next() {
			out[i] = append(out[i], string(r.Line()))
		}

		require.NoError(t, r.Err())
	}

	return out
}

func flatten(perSpan [][]string) []string {
	var all []string

	for _, lines := range perSpan {
		all = append(all, lines...)
	}

	return all
}

func randomContent(rng *rand.Rand, lines int) string {
	const alphabet = "abcdefghij"

	var sb strings.Builder

	for i := range lines {
		n := rng.IntN(12)
		for range n {
			sb.WriteByte(alphabet[rng.IntN(len(alphabet))])
		}

		if i < lines-1 || rng.IntN(2) == 0 {
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

func TestReader_RoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))

	for iter := range 200 {
		content := randomContent(rng, 1+rng.IntN(40))
		chunk := int64(1 + rng.IntN(30))

		got := strings.Join(flatten(readAll(t, strings.NewReader(content), int64(len(content)), chunk)), "\n")
		want := strings.TrimSuffix(content, "\n")

		require.Equal(t, want, got, "iteration %d chunk=%d content=%q", iter, chunk, content)
	}
}

func TestReader_EveryLineExactlyOnce(t *testing.T) {
	t.Parallel()

	var sb strings.Builder

	const lineCount = 500

	for i := range lineCount {
		fmt.Fprintf(&sb, "line-%04d-%s\n", i, strings.Repeat("x", i%17))
	}

	content := sb.String()

	for _, chunk := range []int64{1, 5, 16, 99, 1024, int64(len(content))} {
		lines := flatten(readAll(t, strings.NewReader(content), int64(len(content)), chunk))
		require.Len(t, lines, lineCount, "chunk=%d", chunk)

		seen := make(map[string]int, lineCount)
		for _, l := range lines {
			seen[l]++
		}

		for l, n := range seen {
			assert.Equal(t, 1, n, "line %q delivered %d times (chunk=%d)", l, n, chunk)
		}
	}
}

func TestReader_LongLineDeliveredWhole(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("z", 50)

	for _, content := range []string{line, line + "\n"} {
		perSpan := readAll(t, strings.NewReader(content), int64(len(content)), 1)

		var owners int

		for _, lines := range perSpan {
			if len(lines) == 0 {
				continue
			}

			owners++

			assert.Equal(t, []string{line}, lines)
		}

		assert.Equal(t, 1, owners)
	}
}

func TestReader_LineLongerThanBuffer(t *testing.T) {
	t.Parallel()

	huge := strings.Repeat("q", 200*1024)
	content := "a\n" + huge + "\nb\n"

	lines := flatten(readAll(t, strings.NewReader(content), int64(len(content)), 1000))

	require.Len(t, lines, 3)
	assert.Equal(t, "a", lines[0])
	assert.Len(t, lines[1], len(huge))
	assert.Equal(t, "b", lines[2])
}

func TestReader_ResolvedStart(t *testing.T) {
	t.Parallel()

	content := "abc\ndef\nghi\n"
	src := strings.NewReader(content)

	tests := []struct {
		name      string
		s         span.Span
		wantStart int64
		wantLines []string
	}{
		{"at origin", span.Span{Start: 0, End: 4}, 0, []string{"abc"}},
		{"on line boundary", span.Span{Start: 4, End: 8}, 4, []string{"def"}},
		{"mid line skips to next", span.Span{Start: 5, End: 9}, 8, []string{"ghi"}},
		{"mid last line owns nothing", span.Span{Start: 9, End: 12}, 12, nil},
		{"straddling line delivered", span.Span{Start: 0, End: 2}, 0, []string{"abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := span.NewReader(src, tt.s)
			assert.Equal(t, tt.wantStart, r.Start())

			var lines []string
			for r.Next() {
				lines = append(lines, string(r.Line()))
			}

			require.NoError(t, r.Err())
			assert.Equal(t, tt.wantLines, lines)
			assert.GreaterOrEqual(t, r.Offset(), r.Start())
		})
	}
}

func TestReader_OffsetTracksConsumedBytes(t *testing.T) {
	t.Parallel()

	content := "one\ntwo\nthree\n"
	r := span.NewReader(strings.NewReader(content), span.Span{Start: 0, End: int64(len(content))})

	for r.Next() {
	}

	assert.Equal(t, int64(len(content)), r.Offset())
}

func TestReader_EmptyInput(t *testing.T) {
	t.Parallel()

	r := span.NewReader(strings.NewReader(""), span.Plan(16, 0)[0])

	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
	assert.Nil(t, r.Line())
}

func TestReader_TrimsCarriageReturn(t *testing.T) {
	t.Parallel()

	content := "a\r\nb\r\n"
	lines := flatten(readAll(t, strings.NewReader(content), int64(len(content)), 3))

	assert.Equal(t, []string{"a", "b"}, lines)
}

func TestReader_EmptyLinesAreLines(t *testing.T) {
	t.Parallel()

	content := "\n\nx\n\n"
	lines := flatten(readAll(t, strings.NewReader(content), int64(len(content)), 2))

	assert.Equal(t, []string{"", "", "x", ""}, lines)
}

// probeFailReader fails single-byte probes but serves normal reads.
type probeFailReader struct {
	data string
}

func (p probeFailReader) ReadAt(b []byte, off int64) (int, error) {
	if len(b) == 1 {
		return 0, errors.New("probe failed")
	}

	return strings.NewReader(p.data).ReadAt(b, off)
}

func TestReader_ProbeFailureMeansNoSkip(t *testing.T) {
	t.Parallel()

	src := probeFailReader{data: "abc\ndef\n"}
	r := span.NewReader(src, span.Span{Start: 2, End: 8})

	assert.Equal(t, int64(2), r.Start())
	require.True(t, r.Next())
	assert.Equal(t, "c", string(r.Line()))
	require.True(t, r.Next())
	assert.Equal(t, "def", string(r.Line()))
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}

var errDisk = errors.New("disk on fire")

// failingReader returns data up to limit, then errDisk.
type failingReader struct {
	data  string
	limit int64
}

func (f failingReader) ReadAt(b []byte, off int64) (int, error) {
	if off >= f.limit {
		return 0, errDisk
	}

	if int64(len(b)) > f.limit-off {
		b = b[:f.limit-off]
	}

	n, err := strings.NewReader(f.data).ReadAt(b, off)
	if err == nil && off+int64(n) >= f.limit {
		err = errDisk
	}

	return n, err
}

func TestReader_ReadErrorSurfaces(t *testing.T) {
	t.Parallel()

	content := "aaaa\nbbbb\ncccc\n"
	r := span.NewReader(failingReader{data: content, limit: 7}, span.Span{Start: 0, End: int64(len(content))})

	var lines []string
	for r.Next() {
		lines = append(lines, string(r.Line()))
	}

	require.ErrorIs(t, r.Err(), errDisk)
	assert.Equal(t, []string{"aaaa"}, lines)
}

func TestStreamReader_AllLines(t *testing.T) {
	t.Parallel()

	r := span.NewStreamReader(strings.NewReader("a\r\nbb\n\nccc"))

	var lines []string
	for r.Next() {
		lines = append(lines, string(r.Line()))
	}

	require.NoError(t, r.Err())
	assert.Equal(t, []string{"a", "bb", "", "ccc"}, lines)
	assert.Equal(t, int64(10), r.Offset())
	assert.Zero(t, r.Start())
}
