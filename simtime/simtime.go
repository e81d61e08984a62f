// Package simtime provides the deferred-execution primitive the controller
// suspends on: a real event loop for the simulator and a virtual clock for tests.
package simtime

import (
	"context"
	"time"
)

// Timer is a cancellation handle for a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or was stopped before.
	Stop() bool
}

type Scheduler interface {
	After(d time.Duration, fn func()) Timer
}

// Loop runs every callback and posted job on a single goroutine.
type Loop struct {
	jobs chan func()
	done chan struct{}
}

func NewLoop(queueSize int) *Loop {
	return &Loop{
		jobs: make(chan func(), queueSize),
		done: make(chan struct{}),
	}
}

// Post queues fn for execution on the loop. It returns false once the loop
// has stopped. Must not be called from the loop goroutine with a full queue.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.jobs <- fn:
		return true
	case <-l.done:
		return false
	}
}

// After fires fn on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// Run executes jobs until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.jobs:
			fn()
		}
	}
}
