// Package scheduler fires requests on a precomputed deadline timeline,
// independent of how quickly the server answers — the defining property of
// an open-loop generator. Deadlines are re-armed against an absolute
// monotonic instant every time, never "sleep until the last fire plus
// delta", so a delayed wake (GC pause, scheduler contention) never shifts
// every later deadline forward.
package scheduler

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/scslab/mutated/internal/errs"
	"github.com/scslab/mutated/internal/reactor"
)

// MissedWindowThreshold is how far past its scheduled deadline a fire may
// land before it's counted against MissedSendWindow — the diagnostic that
// the client, not the server, is the bottleneck (spec.md §4.3 / glossary
// "missed send window").
const MissedWindowThreshold = 1 * time.Millisecond

// Scheduler drives a precomputed deadline timeline off a Linux timerfd
// registered with the reactor, so request issuance and socket I/O share one
// epoll_wait loop.
type Scheduler struct {
	fd        int
	reactor   *reactor.Reactor
	baseline  unix.Timespec
	deadlines []time.Duration
	next      int
	threshold time.Duration
	// MissedSendWindow counts individual deadlines that had already fallen
	// more than threshold behind the current time by the moment they fired.
	MissedSendWindow int
}

// New creates a disarmed timerfd and registers it with the reactor. Call
// Start once the deadline timeline and the rest of the run are ready.
func New(r *reactor.Reactor, deadlines []time.Duration, udata uintptr) (*Scheduler, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK)
	if err != nil {
		return nil, errs.Newf(errs.IoError, "timerfd_create: %v", err)
	}
	if err := r.Register(fd, unix.EPOLLIN, udata); err != nil {
		unix.Close(fd)
		return nil, errs.Newf(errs.IoError, "epoll register timerfd: %v", err)
	}
	return &Scheduler{fd: fd, reactor: r, deadlines: deadlines, threshold: MissedWindowThreshold}, nil
}

// FD returns the timerfd, so callers can recognize it against the udata an
// epoll event carries.
func (s *Scheduler) FD() int { return s.fd }

// Start captures the monotonic baseline every deadline is an offset from
// and arms the timer for the first one.
func (s *Scheduler) Start() error {
	ts, err := clockGettime()
	if err != nil {
		return errs.Newf(errs.Internal, "clock_gettime: %v", err)
	}
	s.baseline = ts
	return s.arm()
}

// Done reports whether every deadline in the timeline has fired.
func (s *Scheduler) Done() bool { return s.next >= len(s.deadlines) }

// Fire is called when the reactor reports the timerfd readable. It drains
// the expiration counter, fires every deadline that has elapsed, and
// re-arms for the next one against the absolute baseline (never relative to
// "now"). onDeadline is invoked once per elapsed deadline, in order.
func (s *Scheduler) Fire(onDeadline func()) error {
	var buf [8]byte
	if _, err := unix.Read(s.fd, buf[:]); err != nil && err != unix.EAGAIN {
		return errs.Newf(errs.IoError, "timerfd read: %v", err)
	}

	now, err := clockGettime()
	if err != nil {
		return errs.Newf(errs.Internal, "clock_gettime: %v", err)
	}
	elapsed := sub(now, s.baseline)

	for s.next < len(s.deadlines) && s.deadlines[s.next] <= elapsed {
		if elapsed-s.deadlines[s.next] > s.threshold {
			s.MissedSendWindow++
		}
		onDeadline()
		s.next++
	}
	if s.Done() {
		return nil
	}
	return s.arm()
}

// arm sets the timerfd to the absolute monotonic instant of the next
// deadline.
func (s *Scheduler) arm() error {
	target := add(s.baseline, s.deadlines[s.next])
	spec := &unix.ItimerSpec{
		Value: target,
	}
	return unix.TimerfdSettime(s.fd, unix.TFD_TIMER_ABSTIME, spec, nil)
}

// Close releases the timerfd.
func (s *Scheduler) Close() error {
	_ = s.reactor.Unregister(s.fd)
	return unix.Close(s.fd)
}

func clockGettime() (unix.Timespec, error) {
	var ts unix.Timespec
	err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return ts, err
}

func toNanos(ts unix.Timespec) int64 {
	return int64(ts.Sec)*int64(time.Second) + int64(ts.Nsec)
}

func fromNanos(n int64) unix.Timespec {
	return unix.Timespec{Sec: int64(n / int64(time.Second)), Nsec: n % int64(time.Second)}
}

func add(ts unix.Timespec, d time.Duration) unix.Timespec {
	return fromNanos(toNanos(ts) + int64(d))
}

func sub(a, b unix.Timespec) time.Duration {
	return time.Duration(toNanos(a) - toNanos(b))
}
