package headless

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/cinebridge/bridge"
	"github.com/pithecene-io/cinebridge/engine"
	"github.com/pithecene-io/cinebridge/iox"
	"github.com/pithecene-io/cinebridge/loop"
	"github.com/pithecene-io/cinebridge/slot"
)

func collectEvents(e *Engine) <-chan engine.Event {
	ch := make(chan engine.Event, 16)
	e.Subscribe(func(ev engine.Event) { ch <- ev })
	return ch
}

func nextEvent(t *testing.T, ch <-chan engine.Event) engine.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine event")
		return engine.Event{}
	}
}

func TestEngine_BridgeLoaderFlow(t *testing.T) {
	l := loop.New()
	defer iox.DiscardClose(l)

	s := slot.New()
	e := New(engine.Config{ManifestLoader: bridge.New(s, l)}, l)
	events := collectEvents(e)

	e.AttachMedia(NewMedia("m1"))
	if ev := nextEvent(t, events); ev.Type != engine.EventMediaAttached {
		t.Fatalf("first event = %s, want media_attached", ev.Type)
	}

	e.LoadSource("memory://playlist.m3u8")
	if err := s.Set(mediaPlaylist); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ev := nextEvent(t, events)
	if ev.Type != engine.EventManifestParsed {
		t.Fatalf("event = %s, want manifest_parsed", ev.Type)
	}
	if ev.Manifest == nil || ev.Manifest.Segments != 3 {
		t.Errorf("summary = %+v", ev.Manifest)
	}
	if e.Manifest() != mediaPlaylist {
		t.Error("engine should keep the delivered manifest")
	}
}

func TestEngine_ParseErrorIsFatal(t *testing.T) {
	l := loop.New()
	defer iox.DiscardClose(l)

	s := slot.New()
	_ = s.Set("not a playlist\n")
	e := New(engine.Config{ManifestLoader: bridge.New(s, l)}, l)
	events := collectEvents(e)

	e.LoadSource("memory://playlist.m3u8")

	ev := nextEvent(t, events)
	if ev.Type != engine.EventError || ev.Error == nil {
		t.Fatalf("event = %+v, want error", ev)
	}
	if !ev.Error.Fatal || ev.Error.Type != engine.ErrorTypeOther {
		t.Errorf("error = %+v, want fatal other", ev.Error)
	}
	if !strings.HasPrefix(ev.Error.Details, DetailManifestParsingError) {
		t.Errorf("details = %q", ev.Error.Details)
	}
}

func TestEngine_NetworkLoaderAndStartLoad(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(mediaPlaylist))
	}))
	defer srv.Close()

	l := loop.New()
	defer iox.DiscardClose(l)

	e := New(engine.Config{}, l, WithHTTPClient(srv.Client()))
	events := collectEvents(e)

	e.LoadSource(srv.URL + "/plain.m3u8")
	ev := nextEvent(t, events)
	if ev.Type != engine.EventError || ev.Error.Type != engine.ErrorTypeNetwork || !ev.Error.Fatal {
		t.Fatalf("event = %+v, want fatal network error", ev)
	}

	e.StartLoad()
	ev = nextEvent(t, events)
	if ev.Type != engine.EventManifestParsed {
		t.Fatalf("event after StartLoad = %s, want manifest_parsed", ev.Type)
	}
}

func TestEngine_LoadTimeout(t *testing.T) {
	l := loop.New()
	defer iox.DiscardClose(l)

	s := slot.New()
	e := New(engine.Config{ManifestLoader: bridge.New(s, l)}, l, WithLoadTimeout(20*time.Millisecond))
	events := collectEvents(e)

	e.LoadSource("memory://playlist.m3u8")
	ev := nextEvent(t, events)
	if ev.Type != engine.EventError || ev.Error.Details != DetailManifestLoadTimeout {
		t.Fatalf("event = %+v, want load timeout", ev)
	}
}

func TestEngine_ConfigLoadTimeoutOverridesOption(t *testing.T) {
	l := loop.New()
	defer iox.DiscardClose(l)

	s := slot.New()
	cfg := engine.Config{ManifestLoader: bridge.New(s, l), LoadTimeout: 20 * time.Millisecond}
	e := New(cfg, l, WithLoadTimeout(time.Hour))
	events := collectEvents(e)

	e.LoadSource("memory://playlist.m3u8")
	ev := nextEvent(t, events)
	if ev.Type != engine.EventError || ev.Error.Details != DetailManifestLoadTimeout {
		t.Fatalf("event = %+v, want load timeout", ev)
	}
}

func TestEngine_DestroyDropsEvents(t *testing.T) {
	l := loop.New()
	defer iox.DiscardClose(l)

	s := slot.New()
	b := bridge.New(s, l)
	e := New(engine.Config{ManifestLoader: b}, l)
	events := collectEvents(e)

	e.LoadSource("memory://playlist.m3u8")
	e.Destroy()
	e.Destroy()
	_ = s.Set(mediaPlaylist)
	l.Sync(func() {})
	l.Sync(func() {})

	select {
	case ev := <-events:
		t.Errorf("unexpected event after destroy: %+v", ev)
	default:
	}
	if b.Pending() != 0 {
		t.Errorf("bridge still has %d pending loads", b.Pending())
	}
}

func TestEngine_RecoverMediaError(t *testing.T) {
	l := loop.New()
	defer iox.DiscardClose(l)

	e := New(engine.Config{ManifestLoader: bridge.New(slot.New(), l)}, l)
	e.RecoverMediaError()
	e.RecoverMediaError()
	if e.Recoveries() != 2 {
		t.Errorf("Recoveries = %d, want 2", e.Recoveries())
	}
}
