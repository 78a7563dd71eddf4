package gen

import (
	mathrand "math/rand"
	"time"

	"github.com/scslab/mutated/internal/errs"
	"github.com/scslab/mutated/internal/memcwire"
	"github.com/scslab/mutated/internal/ringbuf"
	"github.com/scslab/mutated/internal/sock"
)

// Memcached drives the memcached binary protocol against a fixed pool of
// keys, issuing GET and SET requests in the given mix. Every request is
// "loud" (always gets a response), unlike the bulk loader's quiet-SET
// stream, since each one produces a latency sample.
type Memcached struct {
	sock        *sock.Socket
	rng         *mathrand.Rand
	keyPoolSize int
	keyNext     int
	valueSize   int
	getRatio    float64
	onSample    SampleFunc
	opaque      uint32
	value       []byte
}

// NewMemcached builds a memcached generator bound to one socket. Keys cycle
// through the keyPoolSize-key pool by index, not at random. getRatio is the
// fraction of requests that are GETs; the remainder are SETs of valueSize
// bytes.
func NewMemcached(s *sock.Socket, keyPoolSize, valueSize int, getRatio float64, rng *mathrand.Rand, onSample SampleFunc) *Memcached {
	value := make([]byte, valueSize)
	for i := range value {
		value[i] = 'a'
	}
	return &Memcached{sock: s, rng: rng, keyPoolSize: keyPoolSize, valueSize: valueSize, getRatio: getRatio, onSample: onSample, value: value}
}

// SendRequest draws the next key in the pool and, per getRatio, issues a GET
// or a SET.
func (g *Memcached) SendRequest(measure bool) error {
	key := memcwire.Key(g.keyNext%g.keyPoolSize + 1)
	g.keyNext++
	g.opaque++
	req := &request{startTs: time.Now(), serviceUs: 0, shouldMeasure: measure}

	var wire []byte
	if g.rng.Float64() < g.getRatio {
		wire = make([]byte, memcwire.HeaderSize+len(key))
		memcwire.PutHeader(wire, memcwire.OpGet, len(key), 0, len(key), g.opaque)
		copy(wire[memcwire.HeaderSize:], key)
	} else {
		extras := 8 // flags + expiration, both left zero
		bodyLen := extras + len(key) + g.valueSize
		wire = make([]byte, memcwire.HeaderSize+bodyLen)
		memcwire.PutHeader(wire, memcwire.OpSet, len(key), extras, bodyLen, g.opaque)
		off := memcwire.HeaderSize + extras
		off += copy(wire[off:], key)
		copy(wire[off:], g.value)
	}

	if err := g.sock.Write(wire); err != nil {
		return err
	}
	g.sock.NotifyOnFlush(func() { req.sentTs = time.Now() })
	return g.sock.EnqueueRead(ringbuf.IOOp{
		HdrLen: memcwire.HeaderSize,
		HdrCB: func(seg1, seg2 []byte, status error) (int, error) {
			if status != nil {
				// Finalization (Put + deliverFailed) happens once, in
				// BodyCB, which Advance always invokes even for a zero
				// body length.
				return 0, nil
			}
			if len(seg1)+len(seg2) != memcwire.HeaderSize {
				g.sock.Put()
				return 0, errs.Newf(errs.ProtocolError, "unexpected memcached header size %d", len(seg1)+len(seg2))
			}
			hdr := memcwire.ParseHeader(memcwire.Concat(seg1, seg2, memcwire.HeaderSize))
			if hdr.Magic != memcwire.MagicResponse {
				g.sock.Put()
				return 0, errs.Newf(errs.ProtocolError, "bad memcached response magic 0x%02x", hdr.Magic)
			}
			return int(hdr.BodyLen), nil
		},
		BodyCB: func(seg1, seg2 []byte, status error) (int, error) {
			defer g.sock.Put()
			if status != nil {
				deliverFailed(req, g.onSample)
				return 0, nil
			}
			return 0, deliver(req, g.onSample)
		},
	})
}
