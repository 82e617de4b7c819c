// Package loop runs the station's interactive domain: one goroutine that
// executes posted tasks one after another. Stream state, the source catalog and
// the detection log are only touched from tasks running here.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("loop: stopped")

// Timer is a pending task scheduled with After.
type Timer interface {
	// Stop cancels the task if it has not been posted yet. It reports whether it did.
	Stop() bool
}

// Scheduler is the part of Loop a periodic task needs.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
}

// Loop is a serial task queue.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// New creates a loop whose queue holds up to size pending tasks.
func New(size int) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{
		tasks: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled. Tasks still queued are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			task()
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post enqueues fn. It blocks while the queue is full and returns false if the
// loop has exited.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// The task may have been dropped with the rest of the queue.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// After posts fn to the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}
