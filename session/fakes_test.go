package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/cinebridge/adapter"
	"github.com/pithecene-io/cinebridge/engine"
	"github.com/pithecene-io/cinebridge/loop"
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/types"
)

const sampleManifest = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXTINF:6.0,\nseg0.ts\n#EXT-X-ENDLIST\n"

func testKeyMaterial(t *testing.T) types.KeyMaterial {
	t.Helper()
	km, err := types.NewKeyMaterial([]byte("0123456789abcdef"), []byte("0123456789ab"), 128)
	if err != nil {
		t.Fatalf("NewKeyMaterial: %v", err)
	}
	return km
}

// fakeEngine records calls and feeds manifest loads through its loader.
type fakeEngine struct {
	sched  loop.Scheduler
	loader engine.Loader
	cfg    engine.Config

	mu         sync.Mutex
	calls      []string
	subs       []func(engine.Event)
	sources    []string
	startLoads int
	recovers   int
	destroyed  bool
	delivered  chan string
}

func newFakeEngine(cfg engine.Config, sched loop.Scheduler) *fakeEngine {
	return &fakeEngine{sched: sched, loader: cfg.ManifestLoader, cfg: cfg, delivered: make(chan string, 4)}
}

func (e *fakeEngine) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) AttachMedia(engine.Media) {
	e.record("attach")
	e.emit(engine.Event{Type: engine.EventMediaAttached})
}

func (e *fakeEngine) LoadSource(url string) {
	e.record("load_source")
	e.mu.Lock()
	e.sources = append(e.sources, url)
	e.mu.Unlock()
	if e.loader == nil {
		return
	}
	e.loader.Load(engine.LoaderContext{URL: url}, engine.LoaderConfig{}, engine.LoaderCallbacks{
		OnSuccess: func(resp engine.LoaderResponse, _ *engine.LoadStats, _ engine.LoaderContext) {
			e.delivered <- resp.Data
		},
	})
}

func (e *fakeEngine) StartLoad() {
	e.record("start_load")
	e.mu.Lock()
	e.startLoads++
	e.mu.Unlock()
}

func (e *fakeEngine) RecoverMediaError() {
	e.record("recover_media")
	e.mu.Lock()
	e.recovers++
	e.mu.Unlock()
}

func (e *fakeEngine) Subscribe(fn func(engine.Event)) {
	e.mu.Lock()
	e.subs = append(e.subs, fn)
	e.mu.Unlock()
}

func (e *fakeEngine) emit(ev engine.Event) {
	e.sched.Post(func() {
		e.mu.Lock()
		subs := append([]func(engine.Event){}, e.subs...)
		e.mu.Unlock()
		for _, fn := range subs {
			fn(ev)
		}
	})
}

func (e *fakeEngine) Destroy() {
	e.record("destroy")
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
	if e.loader != nil {
		e.loader.Destroy()
	}
}

func (e *fakeEngine) IsDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

type fakeMedia struct{}

func (fakeMedia) ID() string { return "fake-media" }

// fakePlayer runs AttachEngine for custom sources and records controls.
type fakePlayer struct {
	cfg engine.PlayerConfig

	mu        sync.Mutex
	plays     int
	pauses    int
	position  float64
	destroyed bool
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	return nil
}

func (p *fakePlayer) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = seconds
	return nil
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) Duration() float64 { return 6 }

func (p *fakePlayer) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyed = true
	return nil
}

func (p *fakePlayer) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

func (p *fakePlayer) IsDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// harness holds the fakes produced by the factories of one session.
type harness struct {
	loop *loop.Loop

	mu      sync.Mutex
	engines []*fakeEngine
	players []*fakePlayer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := loop.New()
	t.Cleanup(func() { _ = l.Close() })
	return &harness{loop: l}
}

func (h *harness) engineFactory(cfg engine.Config) (engine.Engine, error) {
	e := newFakeEngine(cfg, h.loop)
	h.mu.Lock()
	h.engines = append(h.engines, e)
	h.mu.Unlock()
	return e, nil
}

func (h *harness) playerFactory(cfg engine.PlayerConfig) (engine.Player, error) {
	p := &fakePlayer{cfg: cfg}
	if cfg.SourceType == engine.SourceCustom {
		if err := cfg.AttachEngine(fakeMedia{}); err != nil {
			return nil, err
		}
	}
	h.mu.Lock()
	h.players = append(h.players, p)
	h.mu.Unlock()
	return p, nil
}

func (h *harness) engine(t *testing.T) *fakeEngine {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.engines) != 1 {
		t.Fatalf("expected 1 engine, got %d", len(h.engines))
	}
	return h.engines[0]
}

func (h *harness) player(t *testing.T) *fakePlayer {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.players) != 1 {
		t.Fatalf("expected 1 player, got %d", len(h.players))
	}
	return h.players[0]
}

// drain waits until everything posted so far has run on the loop.
func (h *harness) drain() {
	h.loop.Sync(func() {})
}

func (h *harness) options(t *testing.T) Options {
	return Options{
		EngineFactory: h.engineFactory,
		PlayerFactory: h.playerFactory,
		KeyMaterial:   testKeyMaterial(t),
		Scheduler:     h.loop,
	}
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Destroy() })
	return s
}

func envelopeServer(t *testing.T, env *protocol.Envelope) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(env)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sealedServer(t *testing.T, manifest string) *httptest.Server {
	t.Helper()
	env, err := protocol.SealEnvelope(manifest, testKeyMaterial(t))
	if err != nil {
		t.Fatalf("SealEnvelope: %v", err)
	}
	return envelopeServer(t, env)
}

func waitString(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return ""
	}
}

// recordingAdapter collects published events.
type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.SessionEvent
	err    error
}

func (a *recordingAdapter) Publish(_ context.Context, ev *adapter.SessionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, ev)
	return nil
}

func (a *recordingAdapter) Close() error { return nil }

func (a *recordingAdapter) Outcomes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.Outcome)
	}
	return out
}

var errFactory = errors.New("factory unavailable")
