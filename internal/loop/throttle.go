package loop

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle bounds how often a function runs without dropping calls: a Trigger either
// runs immediately (leading edge) or is guaranteed one trailing run after the window,
// carrying the most recent function. Must be used from the loop only.
type Throttle struct {
	loop    Loop
	limiter *rate.Limiter
	timer   Timer
	pending func()
}

// NewThrottle returns a Throttle allowing one run per window. A zero window disables throttling.
func NewThrottle(l Loop, window time.Duration) *Throttle {
	limit := rate.Inf
	if window > 0 {
		limit = rate.Every(window)
	}
	return &Throttle{
		loop:    l,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Trigger runs fn now if the window allows it, otherwise schedules it as the trailing run.
func (t *Throttle) Trigger(fn func()) {
	now := t.loop.Now()
	if t.timer == nil && t.limiter.AllowN(now, 1) {
		fn()
		return
	}
	t.pending = fn
	if t.timer != nil {
		return
	}
	r := t.limiter.ReserveN(now, 1)
	t.timer = t.loop.AfterFunc(r.DelayFrom(now), t.fire)
}

// Scheduled reports whether a trailing run is armed.
func (t *Throttle) Scheduled() bool {
	return t.timer != nil
}

// Cancel drops any trailing run.
func (t *Throttle) Cancel() {
	t.timer = StopTimer(t.timer)
	t.pending = nil
}

func (t *Throttle) fire() {
	fn := t.pending
	t.pending = nil
	t.timer = nil
	if fn != nil {
		fn()
	}
}
