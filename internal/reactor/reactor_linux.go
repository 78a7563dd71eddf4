// Package reactor wraps a single Linux epoll instance operated in
// edge-triggered mode: each registered descriptor gets exactly one
// notification per readiness transition, so callers must drain a descriptor
// (read/write until EAGAIN) every time it fires.
package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event is a single readiness notification, carrying back the opaque udata
// the caller supplied at Register time so it can find its own bookkeeping
// without a map lookup on the hot path.
type Event struct {
	Events uint32
	Udata  uintptr
}

// Reactor owns one epoll file descriptor.
type Reactor struct {
	epfd int
}

// New creates an epoll instance.
func New() (*Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Reactor{epfd: fd}, nil
}

// Register adds fd to the epoll set in edge-triggered mode, watching for the
// given event mask (e.g. unix.EPOLLIN|unix.EPOLLOUT). udata is echoed back
// on every Event this descriptor produces.
func (r *Reactor) Register(fd int, events uint32, udata uintptr) error {
	ev := unix.EpollEvent{Events: events | unix.EPOLLET}
	*(*uintptr)(unsafe.Pointer(&ev.Pad)) = udata
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify changes the watched event mask for an already-registered fd,
// keeping edge-triggered mode and the original udata.
func (r *Reactor) Modify(fd int, events uint32, udata uintptr) error {
	ev := unix.EpollEvent{Events: events | unix.EPOLLET}
	*(*uintptr)(unsafe.Pointer(&ev.Pad)) = udata
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Unregister removes fd from the epoll set.
func (r *Reactor) Unregister(fd int) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until at least one registered descriptor is ready, the
// timeout (in milliseconds; -1 blocks indefinitely) elapses, or a signal
// interrupts the call, filling out with ready events and returning the
// count. EINTR is retried transparently.
func (r *Reactor) Wait(out []Event, timeoutMs int) (int, error) {
	raw := make([]unix.EpollEvent, len(out))
	var n int
	var err error
	for {
		n, err = unix.EpollWait(r.epfd, raw, timeoutMs)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		out[i] = Event{
			Events: raw[i].Events,
			Udata:  *(*uintptr)(unsafe.Pointer(&raw[i].Pad)),
		}
	}
	return n, nil
}

// Close releases the epoll file descriptor.
func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}
