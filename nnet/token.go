package nnet

import "sync/atomic"

// StopToken requests early termination of a running fit loop. It is set by
// an interrupt listener on another goroutine and polled by the loop at
// batch boundaries, so there is bounded latency between a Stop call and the
// loop observing it. A nil token never reports stopped.
type StopToken struct {
	flag int32
}

// Stop marks the token. Safe to call from any goroutine, idempotent, and
// a no-op on a nil token.
func (t *StopToken) Stop() {
	if t == nil {
		return
	}
	atomic.StoreInt32(&t.flag, 1)
}

// Stopped reports whether Stop has been called.
func (t *StopToken) Stopped() bool {
	return t != nil && atomic.LoadInt32(&t.flag) == 1
}
