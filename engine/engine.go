// Package engine defines the boundary to the adaptive-streaming engine and
// the player that hosts it.
//
// Both are external collaborators. The session receives factories for them
// instead of discovering library singletons, and the engine's pluggable
// manifest loader is expressed as the Loader interface.
package engine

import "time"

// LoaderContext describes one manifest load request issued by the engine.
type LoaderContext struct {
	// URL is the address the engine asked for (the placeholder for
	// encrypted sessions).
	URL string
}

// LoaderConfig carries per-load policy from the engine.
type LoaderConfig struct {
	// Timeout bounds how long the loader may wait for content.
	// Zero means no timeout.
	Timeout time.Duration
}

// LoaderResponse is the payload delivered to OnSuccess.
type LoaderResponse struct {
	URL  string
	Data string
}

// LoadStats is the timing record the engine expects with every response.
// All timestamps carry a monotonic clock reading.
type LoadStats struct {
	Loading   LoadPhase
	Parsing   ParsePhase
	Buffering LoadPhase
	Loaded    int
	Total     int
}

// LoadPhase times a phase with a first-byte mark.
type LoadPhase struct {
	Start time.Time
	First time.Time
	End   time.Time
}

// ParsePhase times a phase without a first-byte mark.
type ParsePhase struct {
	Start time.Time
	End   time.Time
}

// CollapsedStats returns stats with every timestamp set to at and zero sizes.
// Used for synthetic loads that transfer nothing over the network.
func CollapsedStats(at time.Time) *LoadStats {
	return &LoadStats{
		Loading:   LoadPhase{Start: at, First: at, End: at},
		Parsing:   ParsePhase{Start: at, End: at},
		Buffering: LoadPhase{Start: at, First: at, End: at},
	}
}

// LoaderError describes a failed load.
type LoaderError struct {
	Code int
	Text string
}

// LoaderCallbacks are the result channels of one Load call.
// OnError and OnTimeout are optional.
type LoaderCallbacks struct {
	OnSuccess func(resp LoaderResponse, stats *LoadStats, lctx LoaderContext)
	OnError   func(err LoaderError, lctx LoaderContext)
	OnTimeout func(stats *LoadStats, lctx LoaderContext)
}

// Loader is the engine's manifest-loader extension point.
// Callbacks must never run synchronously inside Load.
type Loader interface {
	Load(lctx LoaderContext, cfg LoaderConfig, callbacks LoaderCallbacks)
	Abort()
	Destroy()
}

// ErrorType is the engine's error category.
type ErrorType string

// Error categories reported by the engine.
const (
	ErrorTypeNetwork ErrorType = "network"
	ErrorTypeMedia   ErrorType = "media"
	ErrorTypeMux     ErrorType = "mux"
	ErrorTypeOther   ErrorType = "other"
)

// ErrorData is the payload of an EventError.
type ErrorData struct {
	Type    ErrorType
	Details string
	Fatal   bool
}

// EventType discriminates engine events.
type EventType string

// Engine events the session listens to.
const (
	EventMediaAttached  EventType = "media_attached"
	EventManifestParsed EventType = "manifest_parsed"
	EventError          EventType = "error"
)

// Event is delivered to subscribers on the engine's loop.
type Event struct {
	Type EventType
	// Error is set for EventError.
	Error *ErrorData
	// Manifest is set for EventManifestParsed when the engine exposes a summary.
	Manifest *ManifestSummary
}

// ManifestSummary is an engine-reported description of a parsed manifest.
type ManifestSummary struct {
	Kind           string    `json:"kind"`
	Version        uint8     `json:"version"`
	Variants       []Variant `json:"variants,omitempty"`
	Segments       int       `json:"segments"`
	TargetDuration float64   `json:"target_duration"`
	TotalDuration  float64   `json:"total_duration"`
	Closed         bool      `json:"closed"`
}

// Variant is one rendition in a master playlist.
type Variant struct {
	URI        string `json:"uri"`
	Bandwidth  uint64 `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
}

// Media is the attach target handed to the engine by the player.
type Media interface {
	// ID identifies the media element.
	ID() string
}

// Engine is the adaptive-streaming engine instance.
type Engine interface {
	// AttachMedia binds the engine to media. Completion is signaled with
	// EventMediaAttached.
	AttachMedia(media Media)
	// LoadSource assigns the manifest address and starts loading it.
	LoadSource(url string)
	// StartLoad resumes loading after a fatal network error.
	StartLoad()
	// RecoverMediaError attempts recovery after a fatal media error.
	RecoverMediaError()
	// Subscribe registers fn for all engine events.
	Subscribe(fn func(Event))
	// Destroy releases the engine and its loaders.
	Destroy()
}

// Config is passed to the engine factory.
type Config struct {
	// ManifestLoader replaces the engine's network manifest loader.
	// Segment loading keeps the engine's default path.
	ManifestLoader Loader
	// LoadTimeout bounds each manifest load. Zero keeps the engine default.
	LoadTimeout time.Duration
}

// Factory constructs an engine.
type Factory func(cfg Config) (Engine, error)

// SourceType tells the player how to treat its source URL.
type SourceType string

// Player source types.
const (
	// SourceHLS plays the URL with the player's built-in HLS support.
	SourceHLS SourceType = "hls"
	// SourceCustom hands media to PlayerConfig.AttachEngine instead.
	SourceCustom SourceType = "custom"
)

// PlayerConfig is passed to the player factory.
type PlayerConfig struct {
	Container  any
	SourceURL  string
	SourceType SourceType
	Autoplay   bool
	// AttachEngine is called with the player's media once it exists,
	// for SourceCustom only.
	AttachEngine func(media Media) error
	// Options are opaque player-specific settings.
	Options map[string]any
}

// Player is the playback surface that hosts the engine.
type Player interface {
	Play() error
	Pause() error
	Seek(seconds float64) error
	CurrentTime() float64
	Duration() float64
	Destroy() error
}

// PlayerFactory constructs a player.
type PlayerFactory func(cfg PlayerConfig) (Player, error)
