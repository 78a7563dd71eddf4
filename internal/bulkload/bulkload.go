// Package bulkload implements the companion bulk-loading tool: it fills a
// memcached-compatible server with a key pool using mostly-quiet SETs
// (SETQ) so the wire stays saturated without waiting for a reply on every
// request, checking in with a loud SET every notify-th key (and the very
// last key) to bound how far the loader can run ahead of the server.
package bulkload

import (
	"time"

	"github.com/eapache/queue"

	"github.com/scslab/mutated/internal/errs"
	"github.com/scslab/mutated/internal/memcwire"
	"github.com/scslab/mutated/internal/ringbuf"
	"github.com/scslab/mutated/internal/sock"
)

// Config parameterizes a load run.
type Config struct {
	KeyCount  int
	ValueSize int
	StartSeq  int
	Batch     int // in-flight cap, applied only while a loud SET is outstanding (see Pump)
	Notify    int // every Notify-th key (and the last) gets a loud response
}

// Loader drives one connection through Config.KeyCount key writes.
type Loader struct {
	sock   *sock.Socket
	cfg    Config
	value  []byte
	opaque uint32

	nextSeq int
	sent    int
	recv    int
	onWire  int

	// pendingLoud tracks the sequence ids of in-flight loud SETs in the
	// order they were sent; Pump uses its length to tell whether a loud
	// checkpoint is outstanding. The ids themselves are not read back.
	pendingLoud *queue.Queue

	start time.Time
}

// New builds a loader bound to one socket.
func New(s *sock.Socket, cfg Config) *Loader {
	value := make([]byte, cfg.ValueSize)
	for i := range value {
		value[i] = 'a'
	}
	return &Loader{
		sock:        s,
		cfg:         cfg,
		value:       value,
		nextSeq:     cfg.StartSeq,
		pendingLoud: queue.New(),
	}
}

// Done reports whether every expected loud response has arrived.
func (l *Loader) Done() bool { return l.recv >= l.cfg.KeyCount }

// Start records the run's start time and fills the initial in-flight
// window.
func (l *Loader) Start() error {
	l.start = time.Now()
	return l.Pump()
}

// Elapsed returns how long the run has been in progress.
func (l *Loader) Elapsed() time.Duration { return time.Since(l.start) }

// Pump sends as many new keys as the batch window allows. It's called once
// at startup and again after every loud response frees up wire capacity. The
// batch cap only pauses sending once a loud checkpoint is already in flight
// to eventually release it — if notify is larger than batch, nothing would
// ever unblock a pause taken before the first checkpoint is even sent, so
// the loader keeps pushing through to that checkpoint regardless of batch.
func (l *Loader) Pump() error {
	for l.sent < l.cfg.KeyCount {
		if l.onWire >= l.cfg.Batch && l.pendingLoud.Length() > 0 {
			break
		}
		loud := (l.sent+1)%l.cfg.Notify == 0 || l.sent == l.cfg.KeyCount-1
		seq := l.nextSeq
		l.nextSeq++
		if err := l.sendOne(seq, loud); err != nil {
			return err
		}
		l.sent++
		l.onWire++
	}
	return nil
}

func (l *Loader) sendOne(seq int, loud bool) error {
	key := memcwire.Key(seq)
	extras := 8
	bodyLen := extras + len(key) + len(l.value)
	opcode := byte(memcwire.OpSetQ)
	if loud {
		opcode = memcwire.OpSet
	}
	l.opaque++
	wire := make([]byte, memcwire.HeaderSize+bodyLen)
	memcwire.PutHeader(wire, opcode, len(key), extras, bodyLen, l.opaque)
	off := memcwire.HeaderSize + extras
	off += copy(wire[off:], key)
	copy(wire[off:], l.value)

	if err := l.sock.Write(wire); err != nil {
		return err
	}
	if !loud {
		return nil
	}

	l.pendingLoud.Add(seq)
	return l.sock.EnqueueRead(ringbuf.IOOp{
		HdrLen: memcwire.HeaderSize,
		HdrCB: func(seg1, seg2 []byte, status error) (int, error) {
			if status != nil {
				return 0, nil
			}
			if len(seg1)+len(seg2) != memcwire.HeaderSize {
				return 0, errs.Newf(errs.ProtocolError, "unexpected response size %d", len(seg1)+len(seg2))
			}
			hdr := memcwire.ParseHeader(memcwire.Concat(seg1, seg2, memcwire.HeaderSize))
			if hdr.Magic != memcwire.MagicResponse {
				return 0, errs.Newf(errs.ProtocolError, "bad response magic 0x%02x", hdr.Magic)
			}
			if err := l.onLoudResponse(); err != nil {
				return 0, err
			}
			return int(hdr.BodyLen), nil
		},
		BodyCB: func(seg1, seg2 []byte, status error) (int, error) {
			return 0, nil
		},
	})
}

// onLoudResponse accounts for one loud response, advancing both recv and
// onWire by Notify (one loud reply confirms the whole batch of quiet writes
// that preceded it), then refills the in-flight window.
func (l *Loader) onLoudResponse() error {
	if l.pendingLoud.Length() > 0 {
		l.pendingLoud.Remove()
	}
	l.recv += l.cfg.Notify
	l.onWire -= l.cfg.Notify
	return l.Pump()
}
