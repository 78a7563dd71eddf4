package gen

import (
	mathrand "math/rand"

	"github.com/scslab/mutated/internal/reactor"
	"github.com/scslab/mutated/internal/sock"
)

// ConnMode selects how a request picks the connection it goes out on.
type ConnMode int

const (
	// PerRequest dials a fresh, disposable connection for every request.
	PerRequest ConnMode = iota
	// RoundRobin cycles through a fixed pool of persistent connections.
	RoundRobin
	// Random draws uniformly from a fixed pool of persistent connections.
	Random
)

// Pool hands out sockets to send requests on, according to its ConnMode.
// In PerRequest mode it dials a new socket per Acquire, which the caller
// must route a single request through and then release; in the persistent
// modes it holds connCount long-lived sockets and Acquire bumps the chosen
// one's reference count, so the caller's eventual Put leaves it open.
type Pool struct {
	reactor  *reactor.Reactor
	ip       string
	port     int
	mode     ConnMode
	conns    []*sock.Socket
	rrCursor int
	rng      *mathrand.Rand
}

// NewPool builds a pool. For the persistent modes it dials connCount
// connections immediately; for PerRequest connCount is ignored.
func NewPool(r *reactor.Reactor, ip string, port int, mode ConnMode, connCount int, rng *mathrand.Rand) (*Pool, error) {
	p := &Pool{reactor: r, ip: ip, port: port, mode: mode, rng: rng}
	if mode == PerRequest {
		return p, nil
	}
	p.conns = make([]*sock.Socket, 0, connCount)
	for i := 0; i < connCount; i++ {
		s, err := sock.Dial(r, ip, port)
		if err != nil {
			return nil, err
		}
		p.conns = append(p.conns, s)
	}
	return p, nil
}

// Acquire returns a socket for the next request to use. The caller must
// arrange for Put (via the generator's completion handler) to be called
// exactly once per Acquire.
func (p *Pool) Acquire() (*sock.Socket, error) {
	switch p.mode {
	case PerRequest:
		return sock.Dial(p.reactor, p.ip, p.port)
	case RoundRobin:
		s := p.conns[p.rrCursor]
		p.rrCursor = (p.rrCursor + 1) % len(p.conns)
		return s.Get(), nil
	default: // Random
		s := p.conns[p.rng.Intn(len(p.conns))]
		return s.Get(), nil
	}
}

// Close tears down every persistent connection the pool owns.
func (p *Pool) Close() {
	for _, s := range p.conns {
		s.Put()
	}
}

// RxBytes sums bytes received across the pool's persistent connections.
// PerRequest mode returns 0: its sockets are torn down individually as
// each request completes, so there is no pool-level total to sum.
func (p *Pool) RxBytes() int64 {
	var total int64
	for _, s := range p.conns {
		total += s.RxBytes()
	}
	return total
}

// TxBytes sums bytes sent across the pool's persistent connections. See
// RxBytes for the PerRequest caveat.
func (p *Pool) TxBytes() int64 {
	var total int64
	for _, s := range p.conns {
		total += s.TxBytes()
	}
	return total
}
