// Package loop provides the single-threaded cooperative scheduler the console runs on.
//
// Every socket callback, timer and scheduled commit is a task executed by one goroutine,
// each task running to completion before the next starts. State owned by loop tasks
// therefore needs no locking. Blocking work (dialing) is pushed off-loop with Go and
// its continuation is posted back.
package loop

import "time"

// Timer is a handle to a callback scheduled with AfterFunc.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call stopped it.
	Stop() bool
}

// Loop schedules tasks onto the console's event loop.
type Loop interface {
	// Post queues fn to run on the loop. Safe from any goroutine.
	Post(fn func())
	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// Go runs work off the loop and posts the continuation it returns (if non-nil).
	Go(work func() func())
	// Now is the loop's clock.
	Now() time.Time
}

// StopTimer stops t if it is non-nil and returns nil, for `x = StopTimer(x)`.
func StopTimer(t Timer) Timer {
	if t != nil {
		t.Stop()
	}
	return nil
}
