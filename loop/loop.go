// Package loop provides the cooperative event loop that engine callbacks run on.
//
// A Loop runs posted functions one at a time, in posting order, on a single
// goroutine. Posting never blocks and never runs the function on the
// caller's goroutine, which is what "deliver on the next tick" means for
// loaders and engine events.
package loop

import "sync"

// Scheduler posts work onto an event loop.
type Scheduler interface {
	// Post queues fn for execution. Returns false if the loop is closed.
	Post(fn func()) bool
}

// Loop is a serial FIFO dispatcher backed by one goroutine.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// New starts a loop.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post queues fn. Returns false after Close.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return true
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Close stops accepting work. Already queued functions still run.
// Close does not wait; use Done to wait for the drain.
func (l *Loop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		l.cond.Signal()
	}
	return nil
}

// Done is closed once the loop has drained after Close.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Sync posts fn and waits for it to finish. Returns false if the loop is
// closed. Must not be called from the loop goroutine.
func (l *Loop) Sync(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	<-finished
	return true
}

// Verify Loop implements Scheduler.
var _ Scheduler = (*Loop)(nil)
