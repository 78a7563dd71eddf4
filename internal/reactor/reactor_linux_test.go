package reactor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/scslab/mutated/internal/reactor"
)

func TestReactorFiresOnPipeReadability(t *testing.T) {
	fds, err := unix.Pipe()
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	require.NoError(t, unix.SetNonblock(fds[0], true))

	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Register(fds[0], unix.EPOLLIN, 0xABCD))

	events := make([]reactor.Event, 4)
	n, err := r.Wait(events, 50)
	require.NoError(t, err)
	require.Equal(t, 0, n, "a freshly registered, empty pipe must not report readable")

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	n, err = r.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, uintptr(0xABCD), events[0].Udata)
	require.NotZero(t, events[0].Events&unix.EPOLLIN)
}

func TestReactorWaitTimesOutWithoutEvents(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	start := time.Now()
	events := make([]reactor.Event, 1)
	n, err := r.Wait(events, 50)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestReactorUnregisterStopsNotifications(t *testing.T) {
	fds, err := unix.Pipe()
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	require.NoError(t, unix.SetNonblock(fds[0], true))

	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Register(fds[0], unix.EPOLLIN, 1))
	require.NoError(t, r.Unregister(fds[0]))

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	events := make([]reactor.Event, 4)
	n, err := r.Wait(events, 50)
	require.NoError(t, err)
	require.Equal(t, 0, n, "an unregistered fd must not produce events")
}
