// Package topk provides a key frequency accumulator with an exact mode and a
// capacity-bounded approximate heavy-hitters mode.
//
// An exact accumulator (capacity 0) keeps every key and is lossless; merging
// exact accumulators is commutative and associative. A bounded accumulator
// additionally tracks a candidate set that is pruned whenever it reaches
// twice the capacity, so the ranked output stays O(capacity) regardless of
// key cardinality. Pruning raises a monotonically non-decreasing threshold;
// keys below it are not candidates. Which keys survive can depend on the
// order of additions, so callers should keep every combination step exact and
// bound only the final one.
package topk

import (
	"cmp"
	"slices"
)

// maxCandidateHint bounds the candidate map preallocation. Capacity comes
// from the caller and may be far larger than the number of distinct keys.
const maxCandidateHint = 1024

// Accumulator counts keys. It is not safe for concurrent use; pipelines give
// each worker its own accumulator and merge them afterwards.
type Accumulator struct {
	counts     map[string]uint64
	candidates map[string]uint64
	threshold  uint64
	capacity   int
}

// New returns an accumulator. A capacity of zero (or less) selects exact mode.
func New(capacity int) *Accumulator {
	acc := &Accumulator{
		counts:   make(map[string]uint64),
		capacity: max(capacity, 0),
	}

	if acc.capacity > 0 {
		acc.candidates = make(map[string]uint64, min(acc.capacity, maxCandidateHint/2)*2)
	}

	return acc
}

// Exact reports whether the accumulator runs in exact mode.
func (a *Accumulator) Exact() bool {
	return a.capacity == 0
}

// Capacity returns the configured capacity; zero means exact mode.
func (a *Accumulator) Capacity() int {
	return a.capacity
}

// Threshold returns the minimum count a key needs to be a candidate. It is
// always zero in exact mode.
func (a *Accumulator) Threshold() uint64 {
	return a.threshold
}

// Len returns the number of distinct keys counted.
func (a *Accumulator) Len() int {
	return len(a.counts)
}

// Count returns the exact total accumulated for key.
func (a *Accumulator) Count(key string) uint64 {
	return a.counts[key]
}

// Add adds amount to key and returns the key's new total.
func (a *Accumulator) Add(key string, amount uint64) uint64 {
	total := a.counts[key] + amount
	a.counts[key] = total

	a.consider(key, total)

	return total
}

// AddBytes is Add for a byte-slice key. The key is copied, so callers may
// reuse the slice.
func (a *Accumulator) AddBytes(key []byte, amount uint64) uint64 {
	return a.Add(string(key), amount)
}

// consider updates candidacy for a key after its total changed.
func (a *Accumulator) consider(key string, total uint64) {
	if a.capacity == 0 || total < a.threshold {
		return
	}

	a.candidates[key] = total

	// len/2 < capacity is len < 2*capacity without overflowing for huge
	// capacities.
	if len(a.candidates)/2 < a.capacity {
		return
	}

	a.prune()
}

// prune raises the threshold to the capacity-th largest candidate value and
// drops every candidate at or below it. At most capacity-1 candidates remain.
func (a *Accumulator) prune() {
	values := make([]uint64, 0, len(a.candidates))
	for _, v := range a.candidates {
		values = append(values, v)
	}

	slices.SortFunc(values, func(x, y uint64) int { return cmp.Compare(y, x) })

	cutoff := values[a.capacity-1]
	a.threshold = cutoff

	for k, v := range a.candidates {
		if v <= cutoff {
			delete(a.candidates, k)
		}
	}
}

// Merge adds every exact total of other into a, re-evaluating candidacy
// against a's threshold. Merging a nil accumulator is a no-op.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}

	for k, v := range other.counts {
		a.Add(k, v)
	}
}

// Top returns the ranked keys: every counted key in exact mode, or at most
// capacity candidates in bounded mode. Entries are ordered by count
// descending, then key descending.
func (a *Accumulator) Top() []KeyCount {
	src := a.candidates
	if a.capacity == 0 {
		src = a.counts
	}

	top := make([]KeyCount, 0, len(src))
	for k, v := range src {
		top = append(top, KeyCount{Key: k, Count: v})
	}

	slices.SortFunc(top, Compare)

	if a.capacity > 0 && len(top) > a.capacity {
		top = top[:a.capacity]
	}

	return top
}
