package topk

import (
	"cmp"
	"strconv"
)

// KeyCount is a key with its accumulated count.
type KeyCount struct {
	Key   string `json:"key"   yaml:"key"`
	Count uint64 `json:"count" yaml:"count"`
}

// String formats the entry as "count key".
func (kc KeyCount) String() string {
	return strconv.FormatUint(kc.Count, 10) + " " + kc.Key
}

// Compare orders entries canonically: count descending, ties broken by key
// descending. It is suitable for slices.SortFunc.
func Compare(a, b KeyCount) int {
	if c := cmp.Compare(b.Count, a.Count); c != 0 {
		return c
	}

	return cmp.Compare(b.Key, a.Key)
}
