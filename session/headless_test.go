package session

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/cinebridge/engine/headless"
	"github.com/pithecene-io/cinebridge/loop"
	"github.com/pithecene-io/cinebridge/protocol"
)

func TestHeadlessPlayback_EncryptedManifest(t *testing.T) {
	l := loop.New()
	t.Cleanup(func() { _ = l.Close() })
	srv := sealedServer(t, sampleManifest)

	s := newSession(t, Options{
		EngineFactory: headless.NewFactory(l),
		PlayerFactory: headless.NewPlayerFactory(l),
		KeyMaterial:   testKeyMaterial(t),
		Scheduler:     l,
		Autoplay:      true,
	})
	if err := s.Init(t.Context(), "headless", srv.URL+"/video.c3u8"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.Duration() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("manifest was never parsed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := s.Duration(); got != 6 {
		t.Errorf("duration = %v, want 6", got)
	}
	if s.Metrics().LoaderDelivered != 1 {
		t.Errorf("expected one bridge delivery, got %+v", s.Metrics())
	}
}

func TestHeadlessPlayback_ResolveFailureWithLoaderTimeout(t *testing.T) {
	l := loop.New()
	t.Cleanup(func() { _ = l.Close() })
	srv := envelopeServer(t, protocol.FailureEnvelope(3, "expired token"))

	var reported atomic.Pointer[error]
	s := newSession(t, Options{
		EngineFactory: headless.NewFactory(l),
		PlayerFactory: headless.NewPlayerFactory(l),
		KeyMaterial:   testKeyMaterial(t),
		Scheduler:     l,
		LoaderTimeout: 10 * time.Millisecond,
		OnError:       func(err error) { reported.Store(&err) },
	})

	err := s.Init(t.Context(), "headless", srv.URL+"/video.c3u8")
	var protoErr *protocol.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected *ProtocolError, got %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.State() != StateFailed {
		if time.Now().After(deadline) {
			t.Fatalf("session never failed, metrics %+v", s.Metrics())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// No further loads once the session has failed.
	time.Sleep(100 * time.Millisecond)
	snap := s.Metrics()
	if snap.NetworkRecoveries != 1 || snap.LoaderTimeout != 2 {
		t.Errorf("recoveries=%d timeouts=%d, want 1/2", snap.NetworkRecoveries, snap.LoaderTimeout)
	}
	errp := reported.Load()
	var engErr *EngineError
	if errp == nil || !errors.As(*errp, &engErr) || engErr.Details != headless.DetailManifestLoadTimeout {
		t.Errorf("expected load timeout EngineError, got %v", errp)
	}
}
