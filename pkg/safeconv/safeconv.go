// Package safeconv converts between the integer types used for file offsets
// and counts, panicking where a conversion would silently change the value.
package safeconv

import "math"

// MaxInt is the maximum value for int type (platform-dependent).
const MaxInt = int(^uint(0) >> 1)

// MustInt64ToInt converts an int64 to int, panics on overflow.
// Use only when overflow is logically impossible.
func MustInt64ToInt(v int64) int {
	if v > int64(MaxInt) || v < -int64(MaxInt)-1 {
		panic("safeconv: int64 to int overflow")
	}

	return int(v)
}

// MustInt64ToUint64 converts an int64 to uint64, panics if negative.
// Use only when negative values are logically impossible.
func MustInt64ToUint64(v int64) uint64 {
	if v < 0 {
		panic("safeconv: negative int64 to uint64 conversion")
	}

	return uint64(v)
}

// Uint64ToInt64 converts v, reporting false when v exceeds math.MaxInt64.
func Uint64ToInt64(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}

	return int64(v), true
}
