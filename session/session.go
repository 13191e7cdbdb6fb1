// Package session wires one playback session: container, player, engine and,
// for encrypted URLs, the resolver, slot and bridge that feed the engine its
// manifest from memory.
//
// Lifecycle:
//
//	Uninitialized -> Initializing -> Ready -> Destroyed
//	                       |           |
//	                       +-> Failed <+
//
// Destroy is accepted from every state and is idempotent.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/cinebridge/adapter"
	"github.com/pithecene-io/cinebridge/bridge"
	"github.com/pithecene-io/cinebridge/engine"
	"github.com/pithecene-io/cinebridge/log"
	"github.com/pithecene-io/cinebridge/loop"
	"github.com/pithecene-io/cinebridge/metrics"
	"github.com/pithecene-io/cinebridge/policy"
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/proxy"
	"github.com/pithecene-io/cinebridge/slot"
	"github.com/pithecene-io/cinebridge/types"
)

// State is the session lifecycle state.
type State string

// Session states.
const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
	StateDestroyed     State = "destroyed"
)

// Mode is how the session sources its manifest.
type Mode string

// Source modes, chosen from the Init URL.
const (
	// ModePlain hands the URL to the player's own HLS support.
	ModePlain Mode = "plain"
	// ModeEncrypted resolves an envelope into the slot and serves it
	// through the bridge.
	ModeEncrypted Mode = "encrypted"
	// ModeMemory serves content fed with LoadContent through the bridge.
	ModeMemory Mode = "memory"
)

// ContainerResolver turns the caller's container reference into the value
// handed to the player factory.
type ContainerResolver func(container any) (any, error)

// DefaultPublishTimeout bounds one outcome publish or audit write.
const DefaultPublishTimeout = 10 * time.Second

// MaxRecoveries is how many times a session restarts loading after a fatal
// network error, and separately recovers after a fatal media error.
const MaxRecoveries = 1

// Options configures a Session. EngineFactory, PlayerFactory and a valid
// KeyMaterial are required.
type Options struct {
	EngineFactory engine.Factory
	PlayerFactory engine.PlayerFactory
	KeyMaterial   types.KeyMaterial

	// Scheduler runs engine events and loader deliveries. If nil the
	// session runs its own loop and closes it on Destroy.
	Scheduler loop.Scheduler
	// ResolveContainer maps Init's container argument. If nil the
	// container is used as is and must be non-nil.
	ResolveContainer ContainerResolver

	// Suffix classifies encrypted URLs (default ".c3u8").
	Suffix string
	// Placeholder is the synthetic source URL (default memory://playlist.m3u8).
	Placeholder string
	// ResolverTimeout bounds the envelope fetch. Zero means none.
	ResolverTimeout time.Duration
	// LoaderTimeout bounds each engine manifest load through engine.Config.
	// Zero keeps the engine default.
	LoaderTimeout time.Duration
	// Headers are added to the envelope request.
	Headers map[string]string
	// HTTPClient is the base client for the envelope fetch.
	HTTPClient *http.Client
	// Proxies and ProxyPool select an egress proxy for the envelope fetch.
	Proxies   *proxy.Selector
	ProxyPool string

	// Autoplay starts playback once the manifest is parsed.
	Autoplay bool
	// PlayerOptions are passed through to the player factory.
	PlayerOptions map[string]any
	// OnError receives fatal engine errors that have no recovery action.
	// Called on the scheduler.
	OnError func(err error)

	// Adapter, if set, receives one event per outcome.
	Adapter adapter.Adapter
	// Audit, if set, records one SessionRecord per outcome.
	Audit policy.Policy
	// PublishTimeout bounds each publish and audit write.
	PublishTimeout time.Duration

	Logger    *log.Logger
	Collector *metrics.Collector
	// SessionID overrides the generated UUID.
	SessionID string
}

// Session is one playback session.
type Session struct {
	opts      Options
	slot      *slot.Slot
	sched     loop.Scheduler
	ownedLoop *loop.Loop
	outputs   *loop.Loop
	collector *metrics.Collector

	mu            sync.Mutex
	state         State
	mode          Mode
	meta          types.SessionMeta
	logger        *log.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	started       time.Time
	player        engine.Player
	engine        engine.Engine
	bridge        *bridge.Bridge
	resolver      *protocol.Resolver
	manifestBytes int
	recoveries    map[engine.ErrorType]int
}

// New validates opts and returns an uninitialized session.
// A missing or invalid capability yields *CompatibilityError.
func New(opts Options) (*Session, error) {
	if opts.EngineFactory == nil {
		return nil, &CompatibilityError{Capability: CapabilityEngine, Msg: "engine factory is required"}
	}
	if opts.PlayerFactory == nil {
		return nil, &CompatibilityError{Capability: CapabilityPlayer, Msg: "player factory is required"}
	}
	if err := opts.KeyMaterial.Validate(); err != nil {
		return nil, &CompatibilityError{Capability: CapabilityKeyMaterial, Msg: err.Error()}
	}

	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Suffix == "" {
		opts.Suffix = protocol.DefaultSuffix
	}
	if opts.Placeholder == "" {
		opts.Placeholder = protocol.PlaceholderURL
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	collector := opts.Collector
	if collector == nil {
		collector = metrics.NewCollector(opts.SessionID, "")
	}

	s := &Session{
		opts:      opts,
		slot:      slot.New(),
		sched:     opts.Scheduler,
		outputs:   loop.New(),
		collector: collector,
		state:     StateUninitialized,
		meta:      types.SessionMeta{SessionID: opts.SessionID},
		logger:    opts.Logger.With(map[string]any{"session_id": opts.SessionID}),
	}
	if s.sched == nil {
		s.ownedLoop = loop.New()
		s.sched = s.ownedLoop
	}
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.meta.SessionID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the source mode chosen by Init, or "" before Init.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Meta returns the session identity.
func (s *Session) Meta() types.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Metrics returns a snapshot of the session counters.
func (s *Session) Metrics() metrics.Snapshot {
	return s.collector.Snapshot()
}

// Manifest returns the manifest held by the session, if delivered.
func (s *Session) Manifest() (string, bool) {
	return s.slot.Content()
}

// classify picks the source mode for rawURL.
func (s *Session) classify(rawURL string) Mode {
	switch {
	case rawURL == s.opts.Placeholder:
		return ModeMemory
	case protocol.IsEncryptedWithSuffix(rawURL, s.opts.Suffix):
		return ModeEncrypted
	default:
		return ModePlain
	}
}

// Init wires the session for rawURL inside container.
//
// Plain URLs go straight to the player. Encrypted URLs get a custom source
// whose engine loads the placeholder through the bridge while the resolver
// fetches the envelope under the session context. The session is Ready once
// that wiring is in place; Init then waits for the resolve and returns its
// error. A failed resolve leaves the player attached without a manifest.
//
// Init with the placeholder URL wires the bridge without a resolver; the
// manifest is supplied with LoadContent.
func (s *Session) Init(ctx context.Context, container any, rawURL string) error {
	mode := s.classify(rawURL)

	s.mu.Lock()
	switch s.state {
	case StateUninitialized:
	case StateDestroyed:
		s.mu.Unlock()
		return ErrDestroyed
	default:
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.state = StateInitializing
	s.mode = mode
	s.started = time.Now()
	s.meta.URL = rawURL
	s.meta.Encrypted = mode == ModeEncrypted
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.logger = s.logger.With(map[string]any{
		"url":       types.RedactURL(rawURL),
		"encrypted": s.meta.Encrypted,
	})
	logger := s.logger
	s.mu.Unlock()

	s.collector.IncSessionStarted()
	logger.Info("session initializing", map[string]any{"mode": string(mode)})

	resolved, err := s.resolveContainer(container)
	if err != nil {
		return s.fail(fmt.Errorf("session: resolve container: %w", err))
	}

	if mode == ModePlain {
		player, err := s.opts.PlayerFactory(engine.PlayerConfig{
			Container:  resolved,
			SourceURL:  rawURL,
			SourceType: engine.SourceHLS,
			Autoplay:   s.opts.Autoplay,
			Options:    s.opts.PlayerOptions,
		})
		if err != nil {
			return s.fail(fmt.Errorf("session: create player: %w", err))
		}
		if err := s.setPlayer(player); err != nil {
			return err
		}
		if err := s.markReady(); err != nil {
			return err
		}
		s.record(types.OutcomeReady, nil)
		return nil
	}

	var resolver *protocol.Resolver
	if mode == ModeEncrypted {
		resolver, err = protocol.NewResolver(protocol.Config{
			KeyMaterial: s.opts.KeyMaterial,
			Slot:        s.slot,
			Suffix:      s.opts.Suffix,
			Timeout:     s.opts.ResolverTimeout,
			Headers:     s.opts.Headers,
			Proxies:     s.opts.Proxies,
			ProxyPool:   s.opts.ProxyPool,
			SessionID:   s.meta.SessionID,
			Client:      s.opts.HTTPClient,
			Collector:   s.collector,
			Logger:      logger,
		})
		if err != nil {
			return s.fail(fmt.Errorf("session: %w", err))
		}
	}

	b := bridge.New(s.slot, s.sched, bridge.WithCollector(s.collector))
	s.mu.Lock()
	s.bridge = b
	s.resolver = resolver
	sessCtx := s.ctx
	s.mu.Unlock()

	player, err := s.opts.PlayerFactory(engine.PlayerConfig{
		Container:    resolved,
		SourceURL:    s.opts.Placeholder,
		SourceType:   engine.SourceCustom,
		Autoplay:     s.opts.Autoplay,
		AttachEngine: s.attachEngine,
		Options:      s.opts.PlayerOptions,
	})
	if err != nil {
		return s.fail(fmt.Errorf("session: create player: %w", err))
	}
	if err := s.setPlayer(player); err != nil {
		return err
	}

	if mode == ModeMemory {
		if err := s.markReady(); err != nil {
			return err
		}
		s.record(types.OutcomeReady, nil)
		return nil
	}

	result := make(chan error, 1)
	go func() {
		_, err := resolver.Resolve(sessCtx, rawURL)
		result <- err
	}()

	if err := s.markReady(); err != nil {
		return err
	}

	if err := <-result; err != nil {
		s.record(types.OutcomeResolveFailed, err)
		return err
	}

	content, _ := s.slot.Content()
	s.mu.Lock()
	s.manifestBytes = len(content)
	s.mu.Unlock()
	s.record(types.OutcomeReady, nil)
	return nil
}

func (s *Session) resolveContainer(container any) (any, error) {
	if s.opts.ResolveContainer != nil {
		return s.opts.ResolveContainer(container)
	}
	if container == nil {
		return nil, ErrNoContainer
	}
	return container, nil
}

// attachEngine is the custom-source hook handed to the player. It builds
// the engine around the bridge and attaches media; the source is assigned
// once MediaAttached arrives.
func (s *Session) attachEngine(media engine.Media) error {
	s.mu.Lock()
	b := s.bridge
	s.mu.Unlock()

	eng, err := s.opts.EngineFactory(engine.Config{ManifestLoader: b, LoadTimeout: s.opts.LoaderTimeout})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		eng.Destroy()
		return ErrDestroyed
	}
	s.engine = eng
	s.mu.Unlock()

	eng.Subscribe(s.handleEvent)
	eng.AttachMedia(media)
	return nil
}

// setPlayer stores player unless the session was destroyed meanwhile, in
// which case the player is released here.
func (s *Session) setPlayer(player engine.Player) error {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		_ = player.Destroy()
		return ErrDestroyed
	}
	s.player = player
	s.mu.Unlock()
	return nil
}

func (s *Session) markReady() error {
	s.mu.Lock()
	if s.state != StateInitializing {
		st := s.state
		s.mu.Unlock()
		if st == StateDestroyed {
			return ErrDestroyed
		}
		return fmt.Errorf("session: unexpected state %s", st)
	}
	s.state = StateReady
	logger := s.logger
	s.mu.Unlock()

	s.collector.IncSessionReady()
	logger.Info("session ready", nil)
	return nil
}

// fail moves the session to Failed and returns err.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state == StateDestroyed || s.state == StateFailed {
		s.mu.Unlock()
		return err
	}
	s.state = StateFailed
	logger := s.logger
	s.mu.Unlock()

	s.collector.IncSessionFailed()
	logger.Error("session failed", map[string]any{"error": err.Error()})
	s.record(types.OutcomeFailed, err)
	return err
}

// LoadContent feeds manifest text directly into the session's slot. The
// text must carry the #EXTM3U marker. The slot is write-once: different
// content after a successful write returns slot.ErrConflict.
func (s *Session) LoadContent(content string) error {
	if s.State() == StateDestroyed {
		return ErrDestroyed
	}
	if err := protocol.ValidateManifest(content); err != nil {
		return err
	}
	if err := s.slot.Set(content); err != nil {
		return fmt.Errorf("session: load content: %w", err)
	}

	s.mu.Lock()
	s.manifestBytes = len(content)
	s.mu.Unlock()
	return nil
}

// Destroy cancels any in-flight resolve, releases the engine and player,
// resets the slot and flushes outcome sinks. It is safe in every state and
// after the first call does nothing. Teardown errors are joined and
// returned; teardown always completes.
func (s *Session) Destroy() error {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateDestroyed
	cancel := s.cancel
	eng, player, b, resolver := s.engine, s.player, s.bridge, s.resolver
	s.engine, s.player = nil, nil
	logger := s.logger
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if b != nil {
		b.Destroy()
	}
	if eng != nil {
		eng.Destroy()
	}

	var errs []error
	if player != nil {
		if err := player.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("session: destroy player: %w", err))
		}
	}
	s.slot.Reset()
	if resolver != nil {
		errs = append(errs, resolver.Close())
	}

	if prev != StateUninitialized {
		s.collector.IncSessionDestroyed()
		s.record(types.OutcomeDestroyed, nil)
	}
	if s.opts.Audit != nil {
		s.outputs.Post(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.PublishTimeout)
			defer cancel()
			if err := s.opts.Audit.Flush(ctx); err != nil {
				logger.Warn("audit flush failed", map[string]any{"error": err.Error()})
			}
		})
	}

	_ = s.outputs.Close()
	<-s.outputs.Done()
	if s.ownedLoop != nil {
		_ = s.ownedLoop.Close()
	}

	logger.Info("session destroyed", map[string]any{"previous_state": string(prev)})
	return errors.Join(errs...)
}
