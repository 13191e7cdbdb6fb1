package types

import "errors"

// SessionMeta identifies one playback session in logs, events and audit records.
type SessionMeta struct {
	// SessionID is the unique session identifier.
	SessionID string
	// URL is the content URL the session was initialized with.
	URL string
	// Encrypted reports whether URL was classified as an encrypted manifest.
	Encrypted bool
}

// Validate checks that the session identity is usable.
func (m *SessionMeta) Validate() error {
	if m.SessionID == "" {
		return errors.New("session_id must be non-empty")
	}
	return nil
}

// SessionOutcome is the terminal or notable outcome of a session.
type SessionOutcome string

// Session outcome constants.
const (
	// OutcomeReady means the pipeline was wired and the manifest resolved.
	OutcomeReady SessionOutcome = "ready"
	// OutcomeResolveFailed means the encrypted manifest could not be acquired.
	OutcomeResolveFailed SessionOutcome = "resolve_failed"
	// OutcomeFailed means the session moved to the Failed state.
	OutcomeFailed SessionOutcome = "failed"
	// OutcomeDestroyed means the session was torn down.
	OutcomeDestroyed SessionOutcome = "destroyed"
)
