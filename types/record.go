package types

import (
	"errors"
	"net/url"
	"time"
)

// SessionRecord is the audit record of a notable session transition.
// It never carries manifest content or key material.
type SessionRecord struct {
	SessionID string         `json:"session_id" msgpack:"session_id"`
	URL       string         `json:"url" msgpack:"url"`
	Encrypted bool           `json:"encrypted" msgpack:"encrypted"`
	Outcome   SessionOutcome `json:"outcome" msgpack:"outcome"`
	State     string         `json:"state" msgpack:"state"`
	// ErrorKind is the failure classification (transport, protocol, ...).
	ErrorKind string `json:"error_kind,omitempty" msgpack:"error_kind,omitempty"`
	// Error is the failure message.
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
	// ManifestBytes is the size of the delivered manifest, zero if none.
	ManifestBytes int       `json:"manifest_bytes" msgpack:"manifest_bytes"`
	Timestamp     time.Time `json:"timestamp" msgpack:"timestamp"`
	// DurationMs is the time since Init.
	DurationMs int64 `json:"duration_ms" msgpack:"duration_ms"`
}

// Validate checks the record's required fields.
func (r *SessionRecord) Validate() error {
	if r.SessionID == "" {
		return errors.New("session_id must be non-empty")
	}
	if r.Outcome == "" {
		return errors.New("outcome must be non-empty")
	}
	if r.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	return nil
}

// RedactURL drops the query, fragment and user info of rawURL so tokens
// are not persisted. Unparseable input is returned as "<invalid>".
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	return u.String()
}
