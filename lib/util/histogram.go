package util

import (
	"math"
	"sync"
)

// sizeBoundaries are the upper bounds of the histogram buckets, from 16 bytes
// to 64MB. Anything larger lands in an overflow bucket.
var sizeBoundaries = []int{
	16, 64, 256, 1024, 4096,
	16384, 65536, 262144, 1048576,
	4194304, 16777216, 67108864,
}

// SizeHistogram tracks the distribution of payload sizes in exponential
// buckets. It is safe for concurrent use.
type SizeHistogram struct {
	mu      sync.RWMutex
	buckets []int64
	count   int64
	sum     int64
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{buckets: make([]int64, len(sizeBoundaries)+1)}
}

// Add records one sample
func (h *SizeHistogram) Add(size int) {
	idx := len(sizeBoundaries)
	for i, b := range sizeBoundaries {
		if size <= b {
			idx = i
			break
		}
	}

	h.mu.Lock()
	h.buckets[idx]++
	h.count++
	h.sum += int64(size)
	h.mu.Unlock()
}

// Count returns the number of samples
func (h *SizeHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Mean returns the exact average of all samples
func (h *SizeHistogram) Mean() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// Percentile estimates the p-th percentile (0-100) from the bucket the
// sample falls into. Returns 0 without samples or for p out of range.
func (h *SizeHistogram) Percentile(p int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || p < 0 || p > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(p) / 100.0))
	if target == 0 {
		target = 1
	}

	var seen int64
	for i, n := range h.buckets {
		seen += n
		if seen >= target {
			return bucketEstimate(i)
		}
	}
	return int(h.sum / h.count)
}

// Reset drops all samples
func (h *SizeHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count, h.sum = 0, 0
	clear(h.buckets)
}

// bucketEstimate is the representative size of bucket i
func bucketEstimate(i int) int {
	switch {
	case i == 0:
		return sizeBoundaries[0] / 2
	case i < len(sizeBoundaries):
		return (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
	default:
		return sizeBoundaries[len(sizeBoundaries)-1] * 2
	}
}
