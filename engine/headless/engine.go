// Package headless is a manifest-only engine and player.
//
// It implements the engine and player contracts without decoding media:
// the engine loads and parses the manifest through its loader, reports
// the usual events on the loop, and exposes what it parsed. The CLI uses it
// to drive real sessions, and tests use it as a faithful collaborator.
package headless

import (
	"net/http"
	"sync"
	"time"

	"github.com/pithecene-io/cinebridge/engine"
	"github.com/pithecene-io/cinebridge/loop"
)

// Error details reported by the headless engine.
const (
	DetailManifestLoadError    = "manifest_load_error"
	DetailManifestLoadTimeout  = "manifest_load_timeout"
	DetailManifestParsingError = "manifest_parsing_error"
)

// Option configures engines and players built by this package.
type Option func(*options)

type options struct {
	client      *http.Client
	loadTimeout time.Duration
}

// WithHTTPClient sets the client of the default network loader.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithLoadTimeout sets the manifest load timeout passed to loaders.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) { o.loadTimeout = d }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Engine is a headless engine.Engine.
type Engine struct {
	sched       loop.Scheduler
	loader      engine.Loader
	loadTimeout time.Duration

	mu         sync.Mutex
	subs       []func(engine.Event)
	media      engine.Media
	source     string
	summary    *engine.ManifestSummary
	manifest   string
	recoveries int
	destroyed  bool
}

// New creates an engine. A nil cfg.ManifestLoader selects the network loader.
// cfg.LoadTimeout, when set, overrides WithLoadTimeout.
func New(cfg engine.Config, sched loop.Scheduler, opts ...Option) *Engine {
	o := buildOptions(opts)
	loader := cfg.ManifestLoader
	if loader == nil {
		loader = NewHTTPLoader(o.client, sched)
	}
	timeout := o.loadTimeout
	if cfg.LoadTimeout > 0 {
		timeout = cfg.LoadTimeout
	}
	return &Engine{
		sched:       sched,
		loader:      loader,
		loadTimeout: timeout,
	}
}

// NewFactory returns an engine.Factory producing headless engines on sched.
func NewFactory(sched loop.Scheduler, opts ...Option) engine.Factory {
	return func(cfg engine.Config) (engine.Engine, error) {
		return New(cfg, sched, opts...), nil
	}
}

// Subscribe registers fn for every engine event.
func (e *Engine) Subscribe(fn func(engine.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// emit delivers ev to subscribers on the next tick.
func (e *Engine) emit(ev engine.Event) {
	e.sched.Post(func() {
		e.mu.Lock()
		if e.destroyed {
			e.mu.Unlock()
			return
		}
		subs := append([]func(engine.Event){}, e.subs...)
		e.mu.Unlock()

		for _, fn := range subs {
			fn(ev)
		}
	})
}

// AttachMedia binds media and reports EventMediaAttached.
func (e *Engine) AttachMedia(media engine.Media) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.media = media
	e.mu.Unlock()

	e.emit(engine.Event{Type: engine.EventMediaAttached})
}

// LoadSource sets the manifest address and loads it.
func (e *Engine) LoadSource(url string) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.source = url
	e.mu.Unlock()

	e.load()
}

// StartLoad reloads the current source.
func (e *Engine) StartLoad() {
	e.mu.Lock()
	ok := !e.destroyed && e.source != ""
	e.mu.Unlock()
	if ok {
		e.load()
	}
}

// RecoverMediaError records a recovery attempt. There is no media pipeline
// to reset.
func (e *Engine) RecoverMediaError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recoveries++
}

func (e *Engine) load() {
	e.mu.Lock()
	source := e.source
	e.mu.Unlock()

	e.loader.Load(
		engine.LoaderContext{URL: source},
		engine.LoaderConfig{Timeout: e.loadTimeout},
		engine.LoaderCallbacks{
			OnSuccess: func(resp engine.LoaderResponse, _ *engine.LoadStats, _ engine.LoaderContext) {
				e.parsed(resp.Data)
			},
			OnError: func(lerr engine.LoaderError, _ engine.LoaderContext) {
				e.emit(engine.Event{Type: engine.EventError, Error: &engine.ErrorData{
					Type:    engine.ErrorTypeNetwork,
					Details: DetailManifestLoadError + ": " + lerr.Text,
					Fatal:   true,
				}})
			},
			OnTimeout: func(_ *engine.LoadStats, _ engine.LoaderContext) {
				e.emit(engine.Event{Type: engine.EventError, Error: &engine.ErrorData{
					Type:    engine.ErrorTypeNetwork,
					Details: DetailManifestLoadTimeout,
					Fatal:   true,
				}})
			},
		},
	)
}

func (e *Engine) parsed(content string) {
	summary, err := Summarize(content)
	if err != nil {
		e.emit(engine.Event{Type: engine.EventError, Error: &engine.ErrorData{
			Type:    engine.ErrorTypeOther,
			Details: DetailManifestParsingError + ": " + err.Error(),
			Fatal:   true,
		}})
		return
	}

	e.mu.Lock()
	e.summary = summary
	e.manifest = content
	media := e.media
	e.mu.Unlock()

	if m, ok := media.(*Media); ok {
		m.setDuration(summary.TotalDuration)
	}
	e.emit(engine.Event{Type: engine.EventManifestParsed, Manifest: summary})
}

// Summary returns the last parsed manifest summary, or nil.
func (e *Engine) Summary() *engine.ManifestSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// Manifest returns the last parsed manifest text.
func (e *Engine) Manifest() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manifest
}

// Recoveries returns the number of RecoverMediaError calls.
func (e *Engine) Recoveries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recoveries
}

// Destroy releases the loader. Pending events are dropped.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.mu.Unlock()

	e.loader.Destroy()
}

// Verify Engine implements the engine interface.
var _ engine.Engine = (*Engine)(nil)
