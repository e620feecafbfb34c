package topfew

import (
	"sync"

	"github.com/Sumatoshi-tech/topfew/pkg/topk"
)

// reduce combines exact accumulators with a parallel pairwise tree: each
// round merges the upper half into the lower half concurrently, so w folds
// need ceil(log2(w)) rounds. Exact merges are commutative and associative,
// so the tree shape does not change the result. The returned accumulator is
// one of the inputs (or a fresh one when there are none).
func reduce(folds []*topk.Accumulator) *topk.Accumulator {
	live := make([]*topk.Accumulator, 0, len(folds))

	for _, f := range folds {
		if f != nil {
			live = append(live, f)
		}
	}

	if len(live) == 0 {
		return topk.New(0)
	}

	for len(live) > 1 {
		half := (len(live) + 1) / 2

		var wg sync.WaitGroup

		for i := half; i < len(live); i++ {
			dst, src := live[i-half], live[i]

			wg.Add(1)

			go func() {
				defer wg.Done()

				dst.Merge(src)
			}()
		}

		wg.Wait()

		live = live[:half]
	}

	return live[0]
}
