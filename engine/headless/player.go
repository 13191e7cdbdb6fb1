package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pithecene-io/cinebridge/engine"
	"github.com/pithecene-io/cinebridge/loop"
)

// ErrPlayerDestroyed is returned by playback calls after Destroy.
var ErrPlayerDestroyed = errors.New("headless: player destroyed")

// Media is the attach target shared by a player and its engine.
type Media struct {
	id string

	mu       sync.Mutex
	duration float64
}

// NewMedia returns media with the given id.
func NewMedia(id string) *Media {
	return &Media{id: id}
}

// ID identifies the media element.
func (m *Media) ID() string { return m.id }

// Duration is the total duration reported by the attached engine.
func (m *Media) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Media) setDuration(d float64) {
	m.mu.Lock()
	m.duration = d
	m.mu.Unlock()
}

// Player is a headless engine.Player.
type Player struct {
	media  *Media
	engine *Engine // owned engine, SourceHLS only

	mu        sync.Mutex
	playing   bool
	position  float64
	destroyed bool
}

// NewPlayerFactory returns a factory for headless players. SourceHLS players
// run their own engine on sched with the network loader.
func NewPlayerFactory(sched loop.Scheduler, opts ...Option) engine.PlayerFactory {
	return func(cfg engine.PlayerConfig) (engine.Player, error) {
		return NewPlayer(cfg, sched, opts...)
	}
}

// NewPlayer creates a player for cfg.
func NewPlayer(cfg engine.PlayerConfig, sched loop.Scheduler, opts ...Option) (*Player, error) {
	if cfg.Container == nil {
		return nil, errors.New("headless: player requires a container")
	}
	p := &Player{media: NewMedia("media-" + uuid.NewString())}

	switch cfg.SourceType {
	case engine.SourceCustom:
		if cfg.AttachEngine == nil {
			return nil, errors.New("headless: custom source requires AttachEngine")
		}
		if err := cfg.AttachEngine(p.media); err != nil {
			return nil, fmt.Errorf("headless: attach engine: %w", err)
		}

	case engine.SourceHLS:
		if cfg.SourceURL == "" {
			return nil, errors.New("headless: hls source requires a URL")
		}
		e := New(engine.Config{}, sched, opts...)
		e.Subscribe(func(ev engine.Event) {
			switch ev.Type {
			case engine.EventMediaAttached:
				e.LoadSource(cfg.SourceURL)
			case engine.EventManifestParsed:
				if cfg.Autoplay {
					_ = p.Play()
				}
			}
		})
		e.AttachMedia(p.media)
		p.engine = e

	default:
		return nil, fmt.Errorf("headless: unsupported source type %q", cfg.SourceType)
	}

	return p, nil
}

// Media returns the player's media element.
func (p *Player) Media() *Media { return p.media }

// Engine returns the player-owned engine for SourceHLS players, or nil.
func (p *Player) Engine() *Engine { return p.engine }

// Play starts playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	p.playing = true
	return nil
}

// Pause stops playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	p.playing = false
	return nil
}

// Playing reports whether Play was called more recently than Pause.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Seek moves the playhead. The position must lie within the known duration.
func (p *Player) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	if seconds < 0 {
		return fmt.Errorf("headless: seek to negative position %v", seconds)
	}
	if d := p.media.Duration(); d > 0 && seconds > d {
		return fmt.Errorf("headless: seek to %v beyond duration %v", seconds, d)
	}
	p.position = seconds
	return nil
}

// CurrentTime returns the playhead position in seconds.
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Duration returns the media duration in seconds, zero until known.
func (p *Player) Duration() float64 {
	return p.media.Duration()
}

// Destroy releases the player and any engine it owns. Safe to call twice.
func (p *Player) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	p.playing = false
	p.mu.Unlock()

	if p.engine != nil {
		p.engine.Destroy()
	}
	return nil
}

// Verify Player implements the player interface.
var _ engine.Player = (*Player)(nil)
