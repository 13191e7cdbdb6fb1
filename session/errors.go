package session

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/cinebridge/engine"
)

// Capability names reported by CompatibilityError.
const (
	CapabilityEngine      = "engine"
	CapabilityPlayer      = "player"
	CapabilityKeyMaterial = "key_material"
)

// CompatibilityError reports a required capability that is missing or
// unusable. It is returned by New; such a session never reaches Ready.
type CompatibilityError struct {
	Capability string
	Msg        string
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("compatibility: %s: %s", e.Capability, e.Msg)
}

// EngineError is reported through Options.OnError for fatal engine errors
// that have no recovery action.
type EngineError struct {
	Type    engine.ErrorType
	Details string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: fatal %s error: %s", e.Type, e.Details)
}

var (
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("session: already initialized")
	// ErrDestroyed is returned by operations on a destroyed session.
	ErrDestroyed = errors.New("session: destroyed")
	// ErrNotReady is returned by playback controls before a player exists.
	ErrNotReady = errors.New("session: player not ready")
	// ErrNoContainer is returned when Init gets a nil container and no
	// resolver is configured.
	ErrNoContainer = errors.New("session: container is required")
)
