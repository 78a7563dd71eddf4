// Package client wires the reactor, deadline scheduler, connection pool,
// phase controller, and results collector into the single-threaded event
// loop that drives one measurement run from first deadline to last sample.
package client

import (
	mathrand "math/rand"
	"time"

	"github.com/scslab/mutated/internal/affinity"
	"github.com/scslab/mutated/internal/config"
	"github.com/scslab/mutated/internal/errs"
	"github.com/scslab/mutated/internal/gen"
	"github.com/scslab/mutated/internal/phase"
	"github.com/scslab/mutated/internal/reactor"
	"github.com/scslab/mutated/internal/report"
	"github.com/scslab/mutated/internal/scheduler"
	"github.com/scslab/mutated/internal/sock"
	"github.com/scslab/mutated/internal/stats"
)

const (
	// defaultMemcacheKeyPool mirrors the original implementation's fixed
	// KEYS constant: the memcache generator draws its key pool from
	// key-0000...0001 .. key-0000...KeyPoolSize rather than taking a CLI
	// flag, since mutated-client's argument surface has no records flag
	// (only mutated-load's bulk loader does).
	defaultMemcacheKeyPool = 10000
	// defaultMemcacheValueSize matches mutated-load's own -v default, so a
	// fresh load followed by a measurement run exercises same-sized values.
	defaultMemcacheValueSize = 4096

	eventBatch = 64
)

// Outcome is everything a run produces: the sample accumulators and the
// metadata report.PrintHuman/PrintMachine need.
type Outcome struct {
	Results *stats.Results
	Run     report.Run
}

// Run drives one complete measurement experiment to completion and returns
// its results, or a non-nil error if a fatal condition (spec.md §7:
// ProtocolError, Overflow, Internal, or an IoError in a pooled connection
// mode) aborted it early.
func Run(cfg *config.Client, pinCPU int) (*Outcome, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, errs.Newf(errs.Internal, "reactor init: %v", err)
	}
	defer r.Close()

	if pinCPU >= 0 {
		if err := affinity.Pin(pinCPU); err != nil {
			return nil, errs.Newf(errs.Internal, "cpu pin: %v", err)
		}
	}

	rng := scheduler.NewRand()
	timeline := scheduler.BuildTimeline(
		cfg.ReqPerSec,
		time.Duration(cfg.WarmupSeconds)*time.Second,
		time.Duration(cfg.CooldownSeconds)*time.Second,
		cfg.Samples,
		rng,
	)
	postSamples := len(timeline.Deadlines) - timeline.WarmupCount - timeline.MeasureCount
	phaseCtl := phase.New(timeline.WarmupCount, timeline.MeasureCount, postSamples)
	results := stats.NewResults(cfg.Samples)

	pool, err := gen.NewPool(r, cfg.Addr, cfg.Port, cfg.ConnMode, cfg.ConnCount, rng)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	// Udata 0 is reserved for the timer fd (see sock.FromUdata); every
	// socket's udata is a non-zero pointer, so the main loop can tell them
	// apart without a type tag.
	sched, err := scheduler.New(r, timeline.Deadlines, 0)
	if err != nil {
		return nil, err
	}
	defer sched.Close()

	var runErr error
	onSample := func(ok bool, serviceUs, queueUs, waitUs float64, measure bool) {
		if ok && measure {
			results.Service().Add(uint64(serviceUs))
			if queueUs != gen.NotApplicable {
				results.Queue().Add(uint64(queueUs))
			}
			if waitUs != gen.NotApplicable {
				results.Wait().Add(uint64(waitUs))
			}
		}
		last := phaseCtl.RecordReceive(measure)
		if last {
			if err := results.EndMeasurements(time.Now()); err != nil && runErr == nil {
				runErr = err
			}
		}
	}

	onDeadline := func() {
		if runErr != nil {
			return
		}
		if phaseCtl.Sent == timeline.WarmupCount {
			results.StartMeasurements(time.Now())
		}
		p := phaseCtl.RecordSend()
		measure := p == phase.Measure

		s, err := pool.Acquire()
		if err != nil {
			runErr = err
			return
		}
		g := newGenerator(cfg, s, rng, onSample)
		if err := g.SendRequest(measure); err != nil {
			if cfg.ConnMode != gen.PerRequest || !errs.Is(err, errs.IoError) {
				runErr = err
			}
		}
	}

	start := time.Now()
	if err := sched.Start(); err != nil {
		return nil, err
	}

	timeoutMs := -1
	if cfg.SpinWait {
		timeoutMs = 0
	}
	events := make([]reactor.Event, eventBatch)
	for !phaseCtl.RunComplete() && runErr == nil {
		n, err := r.Wait(events, timeoutMs)
		if err != nil {
			return nil, errs.Newf(errs.IoError, "epoll_wait: %v", err)
		}
		for i := 0; i < n && runErr == nil; i++ {
			ev := events[i]
			if ev.Udata == 0 {
				if err := sched.Fire(onDeadline); err != nil {
					runErr = err
				}
				continue
			}
			s := sock.FromUdata(ev.Udata)
			if err := s.RunIO(ev.Events); err != nil {
				s.Fail()
				if cfg.ConnMode != gen.PerRequest || !errs.Is(err, errs.IoError) {
					runErr = err
				}
			}
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	run := report.Run{
		Label:            cfg.Label,
		Throughput:       results.Throughput(),
		RunningSeconds:   time.Since(start).Seconds(),
		RxBytes:          pool.RxBytes(),
		TxBytes:          pool.TxBytes(),
		MissedSendWindow: sched.MissedSendWindow,
	}
	return &Outcome{Results: results, Run: run}, nil
}

// newGenerator builds the protocol adapter for one request, bound to the
// just-acquired socket. A fresh adapter per request is cheap — it's a thin
// wrapper over the socket plus a few scalar parameters — while the socket
// itself may be long-lived (round_robin/random modes) or one-shot
// (per_request mode).
func newGenerator(cfg *config.Client, s *sock.Socket, rng *mathrand.Rand, onSample gen.SampleFunc) gen.Generator {
	switch cfg.Generator {
	case config.Memcache:
		// cfg.ServiceUsMean carries setget, the SET probability; the
		// generator wants getRatio, the GET probability.
		return gen.NewMemcached(s, defaultMemcacheKeyPool, defaultMemcacheValueSize, 1-cfg.ServiceUsMean, rng, onSample)
	default:
		return gen.NewSynthetic(s, cfg.ServiceUsMean, cfg.ServiceDist, rng, onSample)
	}
}
