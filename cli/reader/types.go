// Package reader provides the read-side data access layer for the
// cinebridge CLI.
//
// It isolates read operations from the session runtime: audit records come
// from a Lode dataset and manifest reports from the headless playlist
// parser. Nothing in this package writes.
package reader

import (
	"time"

	"github.com/pithecene-io/cinebridge/types"
)

// SessionRow is one audit record as shown by `cinebridge list sessions`.
type SessionRow struct {
	SessionID     string    `json:"session_id" yaml:"session_id"`
	Outcome       string    `json:"outcome" yaml:"outcome"`
	State         string    `json:"state" yaml:"state"`
	ErrorKind     string    `json:"error_kind" yaml:"error_kind"`
	Encrypted     bool      `json:"encrypted" yaml:"encrypted"`
	ManifestBytes int       `json:"manifest_bytes" yaml:"manifest_bytes"`
	DurationMs    int64     `json:"duration_ms" yaml:"duration_ms"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
	URL           string    `json:"url" yaml:"url"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewSessionRow flattens an audit record.
func NewSessionRow(rec *types.SessionRecord) SessionRow {
	return SessionRow{
		SessionID:     rec.SessionID,
		Outcome:       string(rec.Outcome),
		State:         rec.State,
		ErrorKind:     rec.ErrorKind,
		Encrypted:     rec.Encrypted,
		ManifestBytes: rec.ManifestBytes,
		DurationMs:    rec.DurationMs,
		Timestamp:     rec.Timestamp,
		URL:           rec.URL,
		Error:         rec.Error,
	}
}

// SessionStats aggregates audit records.
type SessionStats struct {
	Records       int            `json:"records" yaml:"records"`
	Sessions      int            `json:"sessions" yaml:"sessions"`
	Encrypted     int            `json:"encrypted" yaml:"encrypted"`
	Ready         int            `json:"ready" yaml:"ready"`
	ResolveFailed int            `json:"resolve_failed" yaml:"resolve_failed"`
	Failed        int            `json:"failed" yaml:"failed"`
	Destroyed     int            `json:"destroyed" yaml:"destroyed"`
	ByErrorKind   map[string]int `json:"by_error_kind,omitempty" yaml:"by_error_kind,omitempty"`
	AvgReadyMs    int64          `json:"avg_ready_ms" yaml:"avg_ready_ms"`
	ManifestBytes int64          `json:"manifest_bytes" yaml:"manifest_bytes"`
	FirstSeen     *time.Time     `json:"first_seen" yaml:"first_seen"`
	LastSeen      *time.Time     `json:"last_seen" yaml:"last_seen"`
	Days          map[string]int `json:"days,omitempty" yaml:"days,omitempty"`
}

// ManifestReport describes a resolved manifest without carrying its content.
type ManifestReport struct {
	URL            string       `json:"url" yaml:"url"`
	Encrypted      bool         `json:"encrypted" yaml:"encrypted"`
	Bytes          int          `json:"bytes" yaml:"bytes"`
	Kind           string       `json:"kind" yaml:"kind"`
	Version        uint8        `json:"version" yaml:"version"`
	Segments       int          `json:"segments" yaml:"segments"`
	TargetDuration float64      `json:"target_duration" yaml:"target_duration"`
	TotalDuration  float64      `json:"total_duration" yaml:"total_duration"`
	Closed         bool         `json:"closed" yaml:"closed"`
	Variants       []VariantRow `json:"variants" yaml:"variants"`
	ResolvedMs     int64        `json:"resolved_ms" yaml:"resolved_ms"`
}

// VariantRow is one rendition of a master playlist.
type VariantRow struct {
	URI        string `json:"uri" yaml:"uri"`
	Bandwidth  uint64 `json:"bandwidth" yaml:"bandwidth"`
	Resolution string `json:"resolution" yaml:"resolution"`
	Codecs     string `json:"codecs" yaml:"codecs"`
}

// ListSessionsOptions filters list and stats queries.
type ListSessionsOptions struct {
	SessionID string
	Outcome   string
	Day       string
	Limit     int
}

// PoolRow is a proxy pool as shown by `cinebridge list pools`.
type PoolRow struct {
	Name      string `json:"name" yaml:"name"`
	Strategy  string `json:"strategy" yaml:"strategy"`
	Endpoints int    `json:"endpoints" yaml:"endpoints"`
	Sticky    string `json:"sticky,omitempty" yaml:"sticky,omitempty"`
	TTLMs     int64  `json:"ttl_ms,omitempty" yaml:"ttl_ms,omitempty"`
}

// NewPoolRows summarizes pools without exposing credentials.
func NewPoolRows(pools []types.ProxyPool) []PoolRow {
	rows := make([]PoolRow, 0, len(pools))
	for _, p := range pools {
		row := PoolRow{
			Name:      p.Name,
			Strategy:  string(p.Strategy),
			Endpoints: len(p.Endpoints),
		}
		if p.Sticky != nil {
			row.Sticky = string(p.Sticky.Scope)
			if p.Sticky.TTLMs != nil {
				row.TTLMs = *p.Sticky.TTLMs
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// ProxyEndpoint is a redacted proxy endpoint.
type ProxyEndpoint struct {
	Protocol string  `json:"protocol" yaml:"protocol"`
	Host     string  `json:"host" yaml:"host"`
	Port     int     `json:"port" yaml:"port"`
	Username *string `json:"username,omitempty" yaml:"username,omitempty"`
}

// ResolveProxyResponse is the result of `cinebridge debug resolve-proxy`.
type ResolveProxyResponse struct {
	Pool      string        `json:"pool" yaml:"pool"`
	Endpoint  ProxyEndpoint `json:"endpoint" yaml:"endpoint"`
	Committed bool          `json:"committed" yaml:"committed"`
}

// FrameRow is one decoded ipc frame. Manifest content is summarized, never
// printed.
type FrameRow struct {
	Index     int    `json:"index" yaml:"index"`
	Type      string `json:"type" yaml:"type"`
	Version   string `json:"version" yaml:"version"`
	SessionID string `json:"session_id" yaml:"session_id"`
	URL       string `json:"url" yaml:"url"`
	Bytes     int    `json:"bytes" yaml:"bytes"`
	Kind      string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message   string `json:"message,omitempty" yaml:"message,omitempty"`
}
