// Package adapter defines the boundary for publishing session outcomes to
// downstream systems.
//
// A session publishes one event per notable transition (ready, resolve
// failed, failed, destroyed). Implementations own their retry policy.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/cinebridge/types"
)

// EventTypeSessionOutcome is the event_type of every published event.
const EventTypeSessionOutcome = "session_outcome"

// SessionEvent is the payload published on a session transition.
// It never carries manifest content or key material.
type SessionEvent struct {
	Version   string `json:"version"`
	EventType string `json:"event_type"` // always "session_outcome"
	SessionID string `json:"session_id"`
	// URL is redacted: no query, fragment or user info.
	URL       string `json:"url"`
	Encrypted bool   `json:"encrypted"`
	Outcome   string `json:"outcome"` // ready, resolve_failed, failed, destroyed
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"` // RFC 3339
	// ManifestBytes is the size of the delivered manifest, zero if none.
	ManifestBytes int   `json:"manifest_bytes"`
	DurationMs    int64 `json:"duration_ms"`
}

// EventFromRecord builds the published event for an audit record.
func EventFromRecord(rec *types.SessionRecord) *SessionEvent {
	return &SessionEvent{
		Version:       types.Version,
		EventType:     EventTypeSessionOutcome,
		SessionID:     rec.SessionID,
		URL:           types.RedactURL(rec.URL),
		Encrypted:     rec.Encrypted,
		Outcome:       string(rec.Outcome),
		ErrorKind:     rec.ErrorKind,
		Error:         rec.Error,
		Timestamp:     rec.Timestamp.UTC().Format(time.RFC3339),
		ManifestBytes: rec.ManifestBytes,
		DurationMs:    rec.DurationMs,
	}
}

// Adapter publishes session events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect ctx cancellation and deadlines.
	Publish(ctx context.Context, event *SessionEvent) error

	// Close releases adapter resources.
	Close() error
}
