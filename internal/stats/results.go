package stats

import (
	"time"

	"github.com/scslab/mutated/internal/errs"
)

// Results holds the samples collected during a run's measurement phase plus
// the derived throughput. Samples recorded during warm-up or cool-down
// never reach this type.
type Results struct {
	measureStart   time.Time
	measureEnd     time.Time
	measureSamples int
	service        *Accum
	queue          *Accum
	wait           *Accum
	throughput     float64
}

// NewResults preallocates every accumulator for the configured measurement
// sample count (spec.md §4.5's measure_samples), also used as Throughput's
// numerator since a failed request in per_request connection mode can leave
// the service accumulator short of measure_samples without aborting the run.
func NewResults(measureSamples int) *Results {
	return &Results{
		measureSamples: measureSamples,
		service:        NewAccum(measureSamples),
		queue:          NewAccum(measureSamples),
		wait:           NewAccum(measureSamples),
	}
}

// StartMeasurements marks the beginning of the measurement window.
func (r *Results) StartMeasurements(now time.Time) {
	r.measureStart = now
}

// EndMeasurements marks the end of the measurement window and computes
// throughput as the configured measurement sample count divided by the
// elapsed window — cool-down time is never included in the denominator.
func (r *Results) EndMeasurements(now time.Time) error {
	r.measureEnd = now
	length := r.measureEnd.Sub(r.measureStart)
	if length <= 0 {
		return errs.New(errs.Internal, "measurement window ended before it started")
	}
	r.throughput = float64(r.measureSamples) / length.Seconds()
	return nil
}

// Service returns the service-time (end-to-end) sample accumulator.
func (r *Results) Service() *Accum { return r.service }

// Queue returns the client-side buffering delay sample accumulator (the
// time a request's bytes spent in the tx ring before actually reaching the
// kernel).
func (r *Results) Queue() *Accum { return r.queue }

// Wait returns the server-side queueing-delay sample accumulator (service
// time beyond the commanded busy-wait, synthetic protocol only).
func (r *Results) Wait() *Accum { return r.wait }

// Throughput returns samples-per-second over the measurement window.
func (r *Results) Throughput() float64 { return r.throughput }
