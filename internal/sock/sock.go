// Package sock implements a non-blocking TCP connection driven entirely by
// reactor edge-triggered readiness events. Each Socket owns a fixed-capacity
// rx ring, a fixed-capacity tx ring, and a FIFO of pending read completions
// (IOOps); generators write requests into the tx ring and enqueue an IOOp
// describing how to parse the response, and the socket drains both rings
// whenever the reactor reports the file descriptor readable or writable.
package sock

import (
	"net"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/scslab/mutated/internal/errs"
	"github.com/scslab/mutated/internal/reactor"
	"github.com/scslab/mutated/internal/ringbuf"
)

const (
	// RingBytes is the fixed rx/tx byte ring capacity, matching the byte
	// budget a single connection's in-flight pipeline needs.
	RingBytes = 1 << 20
	// IOQueueDepth is the maximum number of outstanding read completions a
	// socket can track, i.e. how deeply requests may be pipelined. Sized to
	// memcache's deeper pipelining target rather than synthetic's shallower
	// one, since both protocols share the same socket implementation.
	IOQueueDepth = 4096
)

// txNotify fires cb once every byte written to the tx ring up to and
// including the call that registered it has actually left the socket via
// the kernel, not merely been copied into the ring. Generators use this to
// timestamp the moment a request's bytes were actually sent, distinct from
// the moment the request was enqueued (the gap between the two is queueing
// delay inside the client itself).
type txNotify struct {
	target int64 // cumulative txWritten value this notification waits for
	cb     func()
}

// Socket is a single non-blocking TCP connection.
type Socket struct {
	fd         int
	reactor    *reactor.Reactor
	rx         *ringbuf.ByteRing
	tx         *ringbuf.ByteRing
	ioq        *ringbuf.IOQueue
	connected  bool
	closed     bool
	rxReady    bool
	txReady    bool
	refCnt     int
	rxBytes    int64
	txBytes    int64
	txWritten  int64
	txNotifies []txNotify
	delivering bool
}

// RxBytes returns the total bytes received on this socket so far.
func (s *Socket) RxBytes() int64 { return s.rxBytes }

// TxBytes returns the total bytes sent on this socket so far.
func (s *Socket) TxBytes() int64 { return s.txBytes }

// FromUdata recovers the *Socket a reactor event's Udata was registered
// with. udata must be a value previously produced by Dial; 0 is reserved
// for non-socket registrations (e.g. the deadline scheduler's timerfd) and
// must never reach this function.
func FromUdata(udata uintptr) *Socket {
	return (*Socket)(unsafe.Pointer(udata))
}

// Dial creates a non-blocking TCP socket, begins an asynchronous connect to
// ip:port, and registers it with the reactor for both read and write
// readiness. The socket registers itself with the reactor using its own
// address as the udata value, recoverable via FromUdata.
func Dial(r *reactor.Reactor, ip string, port int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return nil, errs.Newf(errs.IoError, "socket: %v", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		unix.Close(fd)
		return nil, errs.Newf(errs.IoError, "setsockopt TCP_NODELAY: %v", err)
	}

	addr := net.ParseIP(ip)
	if addr == nil {
		unix.Close(fd)
		return nil, errs.Newf(errs.Config, "invalid address %q", ip)
	}
	v4 := addr.To4()
	if v4 == nil {
		unix.Close(fd)
		return nil, errs.Newf(errs.Config, "only IPv4 addresses are supported: %q", ip)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], v4)

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, errs.Newf(errs.IoError, "connect: %v", err)
	}

	s := &Socket{
		fd:      fd,
		reactor: r,
		rx:      ringbuf.NewByteRing(RingBytes),
		tx:      ringbuf.NewByteRing(RingBytes),
		ioq:     ringbuf.NewIOQueue(IOQueueDepth),
		refCnt:  1,
	}
	if err := r.Register(fd, unix.EPOLLIN|unix.EPOLLOUT, uintptr(unsafe.Pointer(s))); err != nil {
		unix.Close(fd)
		return nil, errs.Newf(errs.IoError, "epoll register: %v", err)
	}
	return s, nil
}

// Get increments the reference count and returns the receiver, mirroring
// the generator framework's get/put lifetime contract.
func (s *Socket) Get() *Socket {
	s.refCnt++
	return s
}

// Put decrements the reference count and tears the socket down once it
// reaches zero.
func (s *Socket) Put() {
	s.refCnt--
	if s.refCnt <= 0 {
		s.teardown()
	}
}

// Connected reports whether the asynchronous connect has completed
// successfully.
func (s *Socket) Connected() bool { return s.connected }

// Fail tears the socket down immediately regardless of outstanding
// references, cancelling every pending completion with an IoError status.
// The reactor main loop calls this when RunIO reports a failure, since a
// broken socket can't be left registered waiting for references that may
// never reach zero.
func (s *Socket) Fail() { s.teardown() }

// FD returns the underlying file descriptor, for callers that need it for
// logging or diagnostics only.
func (s *Socket) FD() int { return s.fd }

// WritePrepare returns up to n bytes of the tx ring's writable window.
func (s *Socket) WritePrepare(n int) (seg1, seg2 []byte) {
	return s.tx.PrepareWrite(n)
}

// WriteCommit commits n previously prepared bytes and attempts an immediate
// flush if the socket is currently writable.
func (s *Socket) WriteCommit(n int) error {
	s.tx.CommitWrite(n)
	s.txWritten += int64(n)
	if s.txReady {
		return s.flushTx()
	}
	return nil
}

// Write copies p into the tx ring and flushes immediately if possible. It
// reports an Overflow error if the ring has no room.
func (s *Socket) Write(p []byte) error {
	if !s.tx.Write(p) {
		return errs.Newf(errs.Overflow, "tx ring full, %d bytes dropped", len(p))
	}
	s.txWritten += int64(len(p))
	if s.txReady {
		return s.flushTx()
	}
	return nil
}

// NotifyOnFlush registers cb to run once every byte written so far has
// actually been handed to the kernel (i.e. TxBytes reaches the cumulative
// count as of this call). If that has already happened — the common case
// when the socket isn't backpressured — cb runs synchronously before this
// call returns.
func (s *Socket) NotifyOnFlush(cb func()) {
	target := s.txWritten
	if s.txBytes >= target {
		cb()
		return
	}
	s.txNotifies = append(s.txNotifies, txNotify{target: target, cb: cb})
}

func (s *Socket) fireDueNotifies() {
	i := 0
	for i < len(s.txNotifies) && s.txBytes >= s.txNotifies[i].target {
		s.txNotifies[i].cb()
		i++
	}
	if i > 0 {
		s.txNotifies = s.txNotifies[i:]
	}
}

// EnqueueRead registers an IOOp describing how to consume the next
// response: read op.HdrLen bytes and hand them to op.HdrCB, which reports
// how many further body bytes to wait for (0 for none). It reports an
// Overflow error if the completion queue is already at IOQueueDepth.
func (s *Socket) EnqueueRead(op ringbuf.IOOp) error {
	if !s.ioq.Push(op) {
		return errs.New(errs.Overflow, "ioop queue full")
	}
	return s.tryDeliverRx()
}

// RunIO handles a reactor readiness notification for this socket's fd.
func (s *Socket) RunIO(events uint32) error {
	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 && !s.connected {
		if errno := s.socketError(); errno != nil {
			return errno
		}
	}
	if events&unix.EPOLLOUT != 0 {
		if !s.connected {
			if err := s.socketError(); err != nil {
				return err
			}
			s.connected = true
		}
		s.txReady = true
		if err := s.flushTx(); err != nil {
			return err
		}
	}
	if events&unix.EPOLLIN != 0 {
		s.rxReady = true
		if err := s.fillRx(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Socket) socketError() error {
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errs.Newf(errs.IoError, "getsockopt SO_ERROR: %v", err)
	}
	if errno != 0 {
		return errs.Newf(errs.IoError, "connect failed: %v", unix.Errno(errno))
	}
	return nil
}

func (s *Socket) fillRx() error {
	if s.ioq.Len() == 0 {
		return nil
	}
	space := s.rx.Space()
	if space == 0 {
		return errs.New(errs.Overflow, "rx ring full")
	}
	seg1, seg2 := s.rx.PrepareWrite(space)
	n, err := recvInto(s.fd, seg1, seg2)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		s.rxReady = false
		return nil
	}
	if err != nil {
		return errs.Newf(errs.IoError, "recv: %v", err)
	}
	if n == 0 {
		return errs.New(errs.IoError, "connection closed by peer")
	}
	s.rx.CommitWrite(n)
	s.rxBytes += int64(n)
	return s.tryDeliverRx()
}

func (s *Socket) flushTx() error {
	if s.tx.Len() == 0 {
		return nil
	}
	seg1, seg2 := s.tx.Peek(s.tx.Len())
	n, err := sendFrom(s.fd, seg1, seg2)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		s.txReady = false
		return nil
	}
	if err != nil {
		return errs.Newf(errs.IoError, "send: %v", err)
	}
	s.tx.Drop(n)
	s.txBytes += int64(n)
	s.fireDueNotifies()
	return nil
}

// tryDeliverRx drains as many queued IOOps as the currently buffered rx
// bytes allow. It runs both after a successful read and immediately after a
// new IOOp is enqueued, since edge-triggered epoll won't re-notify for
// bytes that already arrived while the queue was empty.
func (s *Socket) tryDeliverRx() error {
	if s.delivering {
		// A callback running inside this loop enqueued a read; the loop
		// below reaches the new op once the current head is dropped.
		return nil
	}
	s.delivering = true
	defer func() { s.delivering = false }()
	for {
		op := s.ioq.Front()
		if op == nil {
			return nil
		}
		pending := op.Pending()
		if s.rx.Len() < pending {
			return nil
		}
		seg1, seg2 := s.rx.Peek(pending)
		done, err := op.Advance(seg1, seg2, nil)
		s.rx.Drop(pending)
		if done {
			s.ioq.Drop()
		}
		if err != nil {
			return err
		}
	}
}

// teardown cancels every pending IOOp with an IoError status (except a head
// op whose callback is running right now, which tryDeliverRx finishes), sets
// SO_LINGER to zero so the close sends an RST instead of lingering in
// TIME_WAIT, and releases the fd and its reactor registration.
func (s *Socket) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	cancelErr := errs.New(errs.IoError, "socket closed with pending completions")
	skipHead := s.delivering
	s.ioq.Each(func(op *ringbuf.IOOp) {
		if skipHead {
			skipHead = false
			return
		}
		_, _ = op.Advance(nil, nil, cancelErr)
	})
	_ = s.reactor.Unregister(s.fd)
	_ = unix.SetsockoptLinger(s.fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
	unix.Close(s.fd)
}

func buffers(seg1, seg2 []byte) [][]byte {
	switch {
	case len(seg1) == 0 && len(seg2) == 0:
		return nil
	case len(seg2) == 0:
		return [][]byte{seg1}
	default:
		return [][]byte{seg1, seg2}
	}
}

func recvInto(fd int, seg1, seg2 []byte) (int, error) {
	n, _, _, _, err := unix.RecvmsgBuffers(fd, buffers(seg1, seg2), nil, unix.MSG_DONTWAIT)
	return n, err
}

func sendFrom(fd int, seg1, seg2 []byte) (int, error) {
	return unix.SendmsgBuffers(fd, buffers(seg1, seg2), nil, unix.MSG_DONTWAIT)
}
