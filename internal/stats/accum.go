// Package stats collects per-sample latency measurements and derives
// summary statistics and throughput from them.
package stats

import (
	"math"
	"sort"
)

// Accum collects a stream of microsecond samples and answers summary
// statistics over them. Percentile, Min, and Max sort a copy of the samples
// lazily on first access after new samples were added, then reuse that
// sorted copy until the next Add invalidates it — sorting on every call
// would be wasteful for the percentile-heavy reports this tool prints. The
// samples themselves stay in insertion order.
type Accum struct {
	samples []uint64
	byValue []uint64 // sorted copy of samples, rebuilt by ensureSorted
	sorted  bool
}

// NewAccum preallocates room for the expected number of samples.
func NewAccum(capacityHint int) *Accum {
	return &Accum{samples: make([]uint64, 0, capacityHint)}
}

// Add records one sample, invalidating the cached sort order.
func (a *Accum) Add(us uint64) {
	a.samples = append(a.samples, us)
	a.sorted = false
}

// Clear discards all recorded samples.
func (a *Accum) Clear() {
	a.samples = a.samples[:0]
	a.sorted = false
}

// Size returns the number of recorded samples.
func (a *Accum) Size() int { return len(a.samples) }

// Raw returns a copy of the recorded samples in the order they were added,
// for reports that want each individual measurement rather than a summary
// statistic.
func (a *Accum) Raw() []uint64 {
	out := make([]uint64, len(a.samples))
	copy(out, a.samples)
	return out
}

// Mean returns the arithmetic mean, 0 if there are no samples.
func (a *Accum) Mean() float64 {
	if len(a.samples) == 0 {
		return 0
	}
	n := float64(len(a.samples))
	mean := 0.0
	for _, s := range a.samples {
		mean += float64(s) / n
	}
	return mean
}

// Stddev returns the population standard deviation, 0 if there are no
// samples.
func (a *Accum) Stddev() float64 {
	if len(a.samples) == 0 {
		return 0
	}
	mean := a.Mean()
	n := float64(len(a.samples))
	sumSq := 0.0
	for _, s := range a.samples {
		d := float64(s) - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / n)
}

func (a *Accum) ensureSorted() {
	if a.sorted {
		return
	}
	a.byValue = append(a.byValue[:0], a.samples...)
	sort.Slice(a.byValue, func(i, j int) bool { return a.byValue[i] < a.byValue[j] })
	a.sorted = true
}

// Percentile returns the p-th percentile (p in [0,1]) using the
// ceil(size*p)-1 rank formula, 0 if there are no samples.
func (a *Accum) Percentile(p float64) uint64 {
	if len(a.samples) == 0 {
		return 0
	}
	a.ensureSorted()
	rank := int(math.Ceil(float64(len(a.samples))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(a.samples) {
		rank = len(a.samples) - 1
	}
	return a.byValue[rank]
}

// Min returns the smallest sample, 0 if there are no samples.
func (a *Accum) Min() uint64 {
	if len(a.samples) == 0 {
		return 0
	}
	a.ensureSorted()
	return a.byValue[0]
}

// Max returns the largest sample, 0 if there are no samples.
func (a *Accum) Max() uint64 {
	if len(a.samples) == 0 {
		return 0
	}
	a.ensureSorted()
	return a.byValue[len(a.byValue)-1]
}
