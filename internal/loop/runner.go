package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"modbus_console/internal/logger"
)

// Runner is the production Loop: an unbounded FIFO task queue drained by Run.
type Runner struct {
	log *logger.Logger

	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
}

// NewRunner returns a Runner. Tasks may be posted before Run starts.
func NewRunner(log *logger.Logger) *Runner {
	return &Runner{
		log:  logger.OrNop(log),
		wake: make(chan struct{}, 1),
	}
}

// Run executes tasks until ctx is canceled. Tasks still queued at that point are dropped.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		r.mu.Lock()
		r.closed = true
		r.tasks = nil
		r.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
		}
		for {
			fn, ok := r.next()
			if !ok {
				break
			}
			r.exec(fn)
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

// next pops the oldest task.
func (r *Runner) next() (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tasks) == 0 {
		return nil, false
	}
	fn := r.tasks[0]
	r.tasks[0] = nil
	r.tasks = r.tasks[1:]
	return fn, true
}

// exec runs a task; a panic is logged and swallowed so one bad task cannot stop the loop.
func (r *Runner) exec(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorw("loop_task_panic", "panic", rec)
		}
	}()
	fn()
}

func (r *Runner) Post(fn func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.tasks = append(r.tasks, fn)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

type runnerTimer struct {
	t       *time.Timer
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *runnerTimer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	t.t.Stop()
	return !t.fired.Load()
}

func (r *Runner) AfterFunc(d time.Duration, fn func()) Timer {
	rt := &runnerTimer{}
	rt.t = time.AfterFunc(d, func() {
		r.Post(func() {
			if rt.stopped.Load() {
				return
			}
			rt.fired.Store(true)
			fn()
		})
	})
	return rt
}

func (r *Runner) Go(work func() func()) {
	go func() {
		if next := work(); next != nil {
			r.Post(next)
		}
	}()
}

func (r *Runner) Now() time.Time { return time.Now() }

// Call runs fn on the loop and waits for it to finish or for ctx to end.
func Call(ctx context.Context, l Loop, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
