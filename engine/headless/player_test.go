package headless

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pithecene-io/cinebridge/engine"
	"github.com/pithecene-io/cinebridge/iox"
	"github.com/pithecene-io/cinebridge/loop"
)

func TestPlayer_HLSSourceAutoplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(mediaPlaylist))
	}))
	defer srv.Close()

	l := loop.New()
	defer iox.DiscardClose(l)

	p, err := NewPlayer(engine.PlayerConfig{
		Container:  "player",
		SourceURL:  srv.URL + "/plain.m3u8",
		SourceType: engine.SourceHLS,
		Autoplay:   true,
	}, l, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	defer iox.DiscardErr(p.Destroy)

	deadline := time.Now().Add(5 * time.Second)
	for !p.Playing() {
		if time.Now().After(deadline) {
			t.Fatal("autoplay never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if p.Duration() != 16.5 {
		t.Errorf("Duration = %v, want 16.5", p.Duration())
	}
	if p.Engine() == nil || p.Engine().Summary() == nil {
		t.Error("HLS player should own a parsed engine")
	}
}

func TestPlayer_CustomSourceCallsAttachEngine(t *testing.T) {
	l := loop.New()
	defer iox.DiscardClose(l)

	var attached engine.Media
	p, err := NewPlayer(engine.PlayerConfig{
		Container:  "player",
		SourceURL:  "memory://playlist.m3u8",
		SourceType: engine.SourceCustom,
		AttachEngine: func(m engine.Media) error {
			attached = m
			return nil
		},
	}, l)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	if attached == nil || attached.ID() != p.Media().ID() {
		t.Errorf("AttachEngine got %v, want player media", attached)
	}
	if p.Engine() != nil {
		t.Error("custom source player must not own an engine")
	}
}

func TestPlayer_ConfigErrors(t *testing.T) {
	l := loop.New()
	defer iox.DiscardClose(l)

	attachErr := errors.New("no engine")
	tests := []struct {
		name string
		cfg  engine.PlayerConfig
	}{
		{"no container", engine.PlayerConfig{SourceType: engine.SourceHLS, SourceURL: "http://x/a.m3u8"}},
		{"custom without hook", engine.PlayerConfig{Container: "c", SourceType: engine.SourceCustom}},
		{"hls without url", engine.PlayerConfig{Container: "c", SourceType: engine.SourceHLS}},
		{"unknown type", engine.PlayerConfig{Container: "c", SourceType: "dash"}},
		{"hook fails", engine.PlayerConfig{
			Container:    "c",
			SourceType:   engine.SourceCustom,
			AttachEngine: func(engine.Media) error { return attachErr },
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPlayer(tt.cfg, l); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPlayer_PlaybackControls(t *testing.T) {
	l := loop.New()
	defer iox.DiscardClose(l)

	p, err := NewPlayer(engine.PlayerConfig{
		Container:    "player",
		SourceType:   engine.SourceCustom,
		AttachEngine: func(engine.Media) error { return nil },
	}, l)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	p.Media().setDuration(30)

	if err := p.Play(); err != nil || !p.Playing() {
		t.Fatalf("Play: %v playing=%v", err, p.Playing())
	}
	if err := p.Seek(12.5); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if p.CurrentTime() != 12.5 {
		t.Errorf("CurrentTime = %v, want 12.5", p.CurrentTime())
	}
	if err := p.Seek(31); err == nil {
		t.Error("seek beyond duration should fail")
	}
	if err := p.Seek(-1); err == nil {
		t.Error("negative seek should fail")
	}
	if err := p.Pause(); err != nil || p.Playing() {
		t.Errorf("Pause: %v playing=%v", err, p.Playing())
	}

	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := p.Destroy(); err != nil {
		t.Errorf("second Destroy: %v", err)
	}
	if err := p.Play(); !errors.Is(err, ErrPlayerDestroyed) {
		t.Errorf("Play after destroy = %v, want ErrPlayerDestroyed", err)
	}
}
