package gen

import (
	"encoding/binary"
	"math"
	mathrand "math/rand"
	"time"

	"github.com/scslab/mutated/internal/errs"
	"github.com/scslab/mutated/internal/ringbuf"
	"github.com/scslab/mutated/internal/sock"
)

// ServiceDist selects how a synthetic request's requested service time is
// drawn for each call.
type ServiceDist int

const (
	DistFixed ServiceDist = iota
	DistExponential
	DistLognorm
)

const (
	synDelaySlots  = 16
	synReqHeader   = 8 + 4 + 4 // tag, n, pad
	synReqSize     = synReqHeader + synDelaySlots*8
	synRespSize    = 8 // tag
	synthLognormMu = 2.0
)

// Synthetic drives the synthetic wire protocol: every request asks the
// server to spend an explicit service time before replying, so the
// measured latency can be split into "time the server was told to spend"
// and "everything else" (queueing, scheduling, network).
type Synthetic struct {
	serviceUs float64
	dist      ServiceDist
	rng       *mathrand.Rand
	onSample  SampleFunc
	nextTag   uint64
	sock      *sock.Socket
}

// NewSynthetic builds a synthetic generator bound to one socket.
func NewSynthetic(s *sock.Socket, serviceUs float64, dist ServiceDist, rng *mathrand.Rand, onSample SampleFunc) *Synthetic {
	return &Synthetic{sock: s, serviceUs: serviceUs, dist: dist, rng: rng, onSample: onSample}
}

func (g *Synthetic) drawServiceTime() float64 {
	switch g.dist {
	case DistFixed:
		return math.Ceil(g.serviceUs)
	case DistExponential:
		return math.Ceil(g.rng.ExpFloat64() * g.serviceUs)
	default: // DistLognorm
		mu := math.Log(g.serviceUs) - synthLognormMu
		return math.Ceil(math.Exp(mu + synthLognormMu*g.rng.NormFloat64()))
	}
}

// SendRequest writes one synthetic request and registers its response
// completion.
func (g *Synthetic) SendRequest(measure bool) error {
	service := g.drawServiceTime()
	req := &request{startTs: time.Now(), serviceUs: service, hasCommandedService: true, shouldMeasure: measure}

	g.nextTag++
	buf := make([]byte, synReqSize)
	binary.LittleEndian.PutUint64(buf[0:8], g.nextTag)
	binary.LittleEndian.PutUint32(buf[8:12], 1) // n: exactly one delay slot used
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(service))

	if err := g.sock.Write(buf); err != nil {
		return err
	}
	return g.sock.EnqueueRead(ringbuf.IOOp{
		HdrLen: synRespSize,
		HdrCB: func(seg1, seg2 []byte, status error) (int, error) {
			defer g.sock.Put()
			if status != nil {
				deliverFailed(req, g.onSample)
				return 0, nil
			}
			if len(seg1)+len(seg2) != synRespSize {
				return 0, errs.Newf(errs.ProtocolError, "unexpected synthetic response size %d", len(seg1)+len(seg2))
			}
			return 0, deliver(req, g.onSample)
		},
	})
}
