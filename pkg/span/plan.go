// Package span splits a file into byte-contiguous, line-aligned spans and
// reads the lines that belong to each span.
//
// Spans are planned on nominal chunk boundaries. Each span then resolves its
// own effective start by probing the single byte before its nominal start, so
// spans can be read independently and in any order while every physical line
// is still delivered by exactly one span.
package span

import "github.com/Sumatoshi-tech/topfew/pkg/safeconv"

// Span is a tentative byte range of the input, [Start, End).
type Span struct {
	Start int64 // Inclusive nominal start.
	End   int64 // Exclusive nominal end.
}

// Len returns the nominal length of the span in bytes.
func (s Span) Len() int64 {
	return s.End - s.Start
}

// Count returns the number of spans Plan produces: ceil(totalBytes/chunkSize),
// and never less than one.
func Count(chunkSize, totalBytes int64) int {
	chunkSize = max(chunkSize, 1)

	if totalBytes <= 0 {
		return 1
	}

	n := totalBytes / chunkSize
	if totalBytes%chunkSize != 0 {
		n++
	}

	return safeconv.MustInt64ToInt(n)
}

// Plan returns spans starting at 0, chunkSize, 2*chunkSize, ... until the next
// start would reach totalBytes. An empty input yields a single zero-length
// span. A chunkSize below 1 is treated as 1.
func Plan(chunkSize, totalBytes int64) []Span {
	chunkSize = max(chunkSize, 1)
	totalBytes = max(totalBytes, 0)

	spans := make([]Span, 0, Count(chunkSize, totalBytes))

	for start := int64(0); ; start += chunkSize {
		remaining := totalBytes - start
		spans = append(spans, Span{Start: start, End: start + min(chunkSize, remaining)})

		if chunkSize >= remaining {
			break
		}
	}

	return spans
}

// Starts returns only the nominal start offsets of the planned spans.
func Starts(chunkSize, totalBytes int64) []int64 {
	spans := Plan(chunkSize, totalBytes)
	starts := make([]int64, len(spans))

	for i, s := range spans {
		starts[i] = s.Start
	}

	return starts
}
