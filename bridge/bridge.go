// Package bridge serves the engine's manifest loads from a session's slot.
//
// The engine believes it fetched the placeholder address. The bridge waits
// for the slot to be populated and then delivers the decrypted manifest on
// the engine loop's next tick, with timing stats collapsed to the delivery
// instant because nothing crossed the network.
package bridge

import (
	"sync"
	"time"

	"github.com/pithecene-io/cinebridge/engine"
	"github.com/pithecene-io/cinebridge/loop"
	"github.com/pithecene-io/cinebridge/metrics"
	"github.com/pithecene-io/cinebridge/slot"
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock overrides the delivery timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// WithCollector records deliveries and timeouts.
func WithCollector(c *metrics.Collector) Option {
	return func(b *Bridge) { b.collector = c }
}

// pendingLoad is a Load call that has not produced its callback yet.
type pendingLoad struct {
	cancelWait func()
	timer      *time.Timer
}

func (p *pendingLoad) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.cancelWait != nil {
		p.cancelWait()
	}
}

// Bridge implements engine.Loader on top of a slot.
type Bridge struct {
	slot      *slot.Slot
	sched     loop.Scheduler
	now       func() time.Time
	collector *metrics.Collector

	mu        sync.Mutex
	pending   map[uint64]*pendingLoad
	nextID    uint64
	destroyed bool
}

// New creates a bridge reading from s and delivering on sched.
func New(s *slot.Slot, sched loop.Scheduler, opts ...Option) *Bridge {
	b := &Bridge{
		slot:    s,
		sched:   sched,
		now:     time.Now,
		pending: make(map[uint64]*pendingLoad),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load schedules exactly one callback for this request: OnSuccess once the
// slot holds the manifest, or OnTimeout when cfg.Timeout elapses first.
// Nothing is invoked before Load returns.
func (b *Bridge) Load(lctx engine.LoaderContext, cfg engine.LoaderConfig, callbacks engine.LoaderCallbacks) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	id := b.nextID
	b.nextID++
	b.pending[id] = &pendingLoad{}
	b.mu.Unlock()

	cancelWait := b.slot.Notify(func(content string) {
		b.finish(id, func() { b.deliver(content, lctx, callbacks) })
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[id]
	if !ok {
		// Delivered or aborted before the waiter was stored.
		cancelWait()
		return
	}
	p.cancelWait = cancelWait
	if cfg.Timeout > 0 {
		p.timer = time.AfterFunc(cfg.Timeout, func() {
			b.finish(id, func() { b.timeout(lctx, callbacks) })
		})
	}
}

// finish retires a pending load and posts its callback. Only the first
// caller for a given id wins.
func (b *Bridge) finish(id uint64, deliver func()) {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	p.stop()
	b.sched.Post(deliver)
}

func (b *Bridge) deliver(content string, lctx engine.LoaderContext, callbacks engine.LoaderCallbacks) {
	b.collector.IncLoaderDelivered()
	if callbacks.OnSuccess == nil {
		return
	}
	resp := engine.LoaderResponse{URL: lctx.URL, Data: content}
	callbacks.OnSuccess(resp, engine.CollapsedStats(b.now()), lctx)
}

func (b *Bridge) timeout(lctx engine.LoaderContext, callbacks engine.LoaderCallbacks) {
	b.collector.IncLoaderTimeout()
	switch {
	case callbacks.OnTimeout != nil:
		callbacks.OnTimeout(engine.CollapsedStats(b.now()), lctx)
	case callbacks.OnError != nil:
		callbacks.OnError(engine.LoaderError{Text: "manifest not available before timeout"}, lctx)
	}
}

// Abort drops every pending load without invoking callbacks.
// The resolver that feeds the slot is not affected.
func (b *Bridge) Abort() {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[uint64]*pendingLoad)
	b.mu.Unlock()

	for _, p := range pending {
		p.stop()
	}
}

// Destroy aborts pending loads and ignores later Load calls.
func (b *Bridge) Destroy() {
	b.mu.Lock()
	b.destroyed = true
	b.mu.Unlock()
	b.Abort()
}

// Pending returns the number of loads waiting for content.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Verify Bridge implements the engine loader interface.
var _ engine.Loader = (*Bridge)(nil)
