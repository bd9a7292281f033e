package proxy

import (
	"context"
	"time"

	"apikeyproxy/internal/metrics"
)

// Admission is a bounded backpressure stage sitting in front of the proxy
// pipeline: it caps the number of requests being actively processed and
// sheds load past a wait timeout rather than letting an unbounded number of
// goroutines pile up against a slow or stalled upstream.
type Admission struct {
	slots       chan struct{}
	waitTimeout time.Duration
}

// NewAdmission returns an Admission with the given concurrent capacity and
// maximum wait time for a free slot. A non-positive capacity disables
// admission control (every request passes straight through).
func NewAdmission(capacity int, waitTimeout time.Duration) *Admission {
	if capacity <= 0 {
		return &Admission{}
	}
	return &Admission{
		slots:       make(chan struct{}, capacity),
		waitTimeout: waitTimeout,
	}
}

// Acquire blocks until a slot is free, ctx is done, or waitTimeout elapses —
// whichever comes first. On success it returns a release func the caller
// must invoke exactly once. On failure it returns an *HTTPError (503 for a
// full queue that never drained in time, 499-equivalent passthrough of a
// canceled context) and a nil release func.
func (a *Admission) Acquire(ctx context.Context) (release func(), err error) {
	if a.slots == nil {
		return func() {}, nil
	}

	select {
	case a.slots <- struct{}{}:
		return func() { <-a.slots }, nil
	default:
	}

	metrics.AdmissionDepthSet(int64(len(a.slots)))
	start := time.Now()

	waitCtx := ctx
	var cancel context.CancelFunc
	if a.waitTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, a.waitTimeout)
		defer cancel()
	}

	select {
	case a.slots <- struct{}{}:
		metrics.AdmissionWaitObserve(time.Since(start))
		return func() { <-a.slots }, nil
	case <-waitCtx.Done():
		metrics.AdmissionWaitObserve(time.Since(start))
		if ctx.Err() != nil {
			return nil, newHTTPError(499, "client closed request while waiting for admission", ctx.Err())
		}
		metrics.AdmissionTimeoutsInc()
		metrics.AdmissionRejectedInc()
		return nil, newHTTPError(503, "admission queue timed out", waitCtx.Err())
	}
}
