package scheduler

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mathrand "math/rand"
	"time"
)

// NewRand returns a math/rand source seeded from the OS entropy pool,
// rather than from the wall clock, so concurrent runs of this tool don't
// draw the same inter-arrival sequence.
func NewRand() *mathrand.Rand {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken; a
		// process-specific fallback still beats a hardcoded seed.
		binary.BigEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))
	}
	return mathrand.New(mathrand.NewSource(int64(binary.BigEndian.Uint64(seed[:]))))
}

// Timeline is the full precomputed deadline sequence plus the boundaries
// between its three phases, expressed as indices into Deadlines.
type Timeline struct {
	Deadlines []time.Duration
	// WarmupCount and MeasureCount are how many of the leading deadlines
	// belong to warm-up and measurement respectively; everything after
	// WarmupCount+MeasureCount is cool-down.
	WarmupCount int
	MeasureCount int
}

// BuildTimeline draws exponentially-distributed inter-arrivals with rate
// reqPerSec and partitions the resulting cumulative timeline into three
// contiguous ranges: warm-up (drawn until the running sum reaches
// warmupSeconds), measurement (exactly measureSamples further draws), and
// cool-down (drawn until the running sum reaches the end of measurement
// plus cooldownSeconds).
func BuildTimeline(reqPerSec float64, warmupSeconds, cooldownSeconds time.Duration, measureSamples int, rng *mathrand.Rand) Timeline {
	meanUs := 1e6 / reqPerSec
	var deadlines []time.Duration
	var accumUs float64

	draw := func() time.Duration {
		accumUs += rng.ExpFloat64() * meanUs
		d := time.Duration(math.Ceil(accumUs)) * time.Microsecond
		deadlines = append(deadlines, d)
		return d
	}

	warmupTarget := float64(warmupSeconds) / float64(time.Microsecond)
	for accumUs < warmupTarget {
		draw()
	}
	warmupCount := len(deadlines)

	for i := 0; i < measureSamples; i++ {
		draw()
	}
	measureEndUs := accumUs

	cooldownTarget := measureEndUs + float64(cooldownSeconds)/float64(time.Microsecond)
	for accumUs < cooldownTarget {
		draw()
	}

	return Timeline{Deadlines: deadlines, WarmupCount: warmupCount, MeasureCount: measureSamples}
}
