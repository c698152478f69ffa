package market

import (
	"math"
	"time"
)

// Tick is a single price observation. Time is in milliseconds.
type Tick struct {
	Time  int64
	Value float64
}

// BucketTime rounds tsMs up to the close of the bucket it falls into.
// Live updates inside one bucket share a stamp and therefore revise it.
func BucketTime(tsMs, bucketMs int64) int64 {
	if bucketMs <= 0 {
		return tsMs
	}
	q := tsMs / bucketMs
	if tsMs%bucketMs != 0 && tsMs > 0 {
		q++
	}
	return q * bucketMs
}

// WindowLength returns how many buckets of width bucket cover lookback.
func WindowLength(lookback, bucket time.Duration) (int, error) {
	if bucket <= 0 || lookback <= 0 {
		return 0, ErrInvalidCapacity
	}
	n := int64(lookback / bucket)
	if n < 1 || n > math.MaxInt32 {
		return 0, ErrInvalidCapacity
	}
	return int(n), nil
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
