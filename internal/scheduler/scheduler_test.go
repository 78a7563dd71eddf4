package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scslab/mutated/internal/reactor"
	"github.com/scslab/mutated/internal/scheduler"
)

func TestSchedulerFiresEveryDeadlineInOrder(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	deadlines := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		15 * time.Millisecond,
	}
	s, err := scheduler.New(r, deadlines, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Start())

	var fired int
	events := make([]reactor.Event, 4)
	for !s.Done() {
		n, err := r.Wait(events, 1000)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			require.Equal(t, uintptr(0), events[i].Udata)
			require.NoError(t, s.Fire(func() { fired++ }))
		}
	}
	require.Equal(t, len(deadlines), fired)
}

// TestSchedulerCountsMissedSendWindowPastThreshold delays calling Fire until
// well past the single deadline's threshold window, asserting the counter
// increments exactly once for that one overdue deadline (spec.md §8
// scenario 6).
func TestSchedulerCountsMissedSendWindowPastThreshold(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	deadlines := []time.Duration{5 * time.Millisecond}
	s, err := scheduler.New(r, deadlines, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Start())

	events := make([]reactor.Event, 4)
	n, err := r.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	time.Sleep(scheduler.MissedWindowThreshold + 5*time.Millisecond)

	var fired int
	require.NoError(t, s.Fire(func() { fired++ }))
	require.Equal(t, 1, fired)
	require.Equal(t, 1, s.MissedSendWindow, "the single overdue deadline must be counted exactly once")
}
