// Package gen implements the request generators: wire-format encoders and
// decoders that turn a "send one request" call plus a response arriving on
// the socket's completion queue into one latency sample. Generators never
// see the reactor or the rings directly — they talk to a *sock.Socket,
// which supplies the request/response plumbing.
package gen

import (
	"time"

	"github.com/scslab/mutated/internal/errs"
)

// NotApplicable marks a queueUs or waitUs value as meaningless for this
// generator, so callers must not feed it into a results accumulator.
// Buffer (queue) time is only ever measured for generators that register a
// flush notification (memcached); wait time is only meaningful for
// generators that hand the server a commanded service time to subtract out
// (synthetic). Neither is a per-request condition — the generator that
// built req decides once, for every sample it reports.
const NotApplicable = -1

// Sample is reported exactly once per request that reaches a terminal
// state, successful or not, so the phase controller's received counter
// always advances. ok is false when the request's socket failed before a
// response arrived — in that case serviceUs is zero, queueUs/waitUs are
// NotApplicable, and none of them may be added to the results accumulators. serviceUs is the
// end-to-end latency observed by the client, queueUs is how long the
// request's bytes sat in the client's own tx ring before actually leaving
// the socket, waitUs is the portion of serviceUs beyond the service time
// the request itself asked the server to spend, and shouldMeasure is
// whether this request falls inside the run's measurement window. Either
// of queueUs/waitUs may be NotApplicable, meaning this generator never
// measures that quantity at all.
type SampleFunc func(ok bool, serviceUs, queueUs, waitUs float64, shouldMeasure bool)

// Generator issues one request per call and reports its outcome through
// the SampleFunc it was constructed with.
type Generator interface {
	SendRequest(measure bool) error
}

// request is the per-call bookkeeping a generator closes over between
// issuing a request and its response arriving on the completion queue.
// sentTs is filled in by a socket flush notification registered at send
// time; it stays zero for generators (synthetic) that don't register one.
// hasCommandedService is true only for generators (synthetic) that tell
// the server how long to spend, which is what makes waitUs meaningful.
type request struct {
	startTs             time.Time
	sentTs              time.Time
	serviceUs           float64
	hasCommandedService bool
	shouldMeasure       bool
}

// deliver computes the observed latency for req and reports it through
// onSample. It reports a ProtocolError if the response appears to have
// arrived before the request was sent, which indicates the completion
// queue matched the wrong response to this request.
func deliver(req *request, onSample SampleFunc) error {
	elapsedUs := float64(time.Since(req.startTs).Nanoseconds()) / 1e3
	if elapsedUs <= 0 {
		return errs.New(errs.ProtocolError, "sample arrived before it was sent")
	}
	queueUs := float64(NotApplicable)
	if !req.sentTs.IsZero() {
		queueUs = float64(req.sentTs.Sub(req.startTs).Nanoseconds()) / 1e3
		if queueUs < 0 {
			queueUs = 0
		}
	}
	waitUs := float64(NotApplicable)
	if req.hasCommandedService {
		waitUs = elapsedUs - req.serviceUs
		if waitUs < 0 {
			waitUs = 0
		}
	}
	onSample(true, elapsedUs, queueUs, waitUs, req.shouldMeasure)
	return nil
}

// deliverFailed reports a request that never got a response because its
// socket failed, so the phase controller still sees it as received.
func deliverFailed(req *request, onSample SampleFunc) {
	onSample(false, 0, NotApplicable, NotApplicable, req.shouldMeasure)
}
