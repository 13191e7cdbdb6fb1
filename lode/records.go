package lode

import (
	"time"

	"github.com/pithecene-io/cinebridge/types"
)

// RecordKindSession is the record_kind discriminator of session audit rows.
const RecordKindSession = "session_audit"

// DeriveDay computes the day partition from a record timestamp.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

// toSessionRecordMap converts rec to the stored row. Partition keys
// ("day", "outcome") must be top-level fields for the Hive layout.
func toSessionRecordMap(rec *types.SessionRecord, cfg Config) map[string]any {
	row := map[string]any{
		"record_kind":    RecordKindSession,
		"dataset":        cfg.Dataset,
		"source":         cfg.Source,
		"session_id":     rec.SessionID,
		"url":            types.RedactURL(rec.URL),
		"encrypted":      rec.Encrypted,
		"outcome":        string(rec.Outcome),
		"state":          rec.State,
		"manifest_bytes": rec.ManifestBytes,
		"ts":             rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"duration_ms":    rec.DurationMs,
		"day":            DeriveDay(rec.Timestamp),
	}
	if rec.ErrorKind != "" {
		row["error_kind"] = rec.ErrorKind
	}
	if rec.Error != "" {
		row["error"] = rec.Error
	}
	return row
}

// fromSessionRecordMap rebuilds a SessionRecord from a stored row.
// ok is false for rows of another kind.
func fromSessionRecordMap(row map[string]any) (*types.SessionRecord, bool) {
	if toString(row["record_kind"]) != RecordKindSession {
		return nil, false
	}
	rec := &types.SessionRecord{
		SessionID:     toString(row["session_id"]),
		URL:           toString(row["url"]),
		Outcome:       types.SessionOutcome(toString(row["outcome"])),
		State:         toString(row["state"]),
		ErrorKind:     toString(row["error_kind"]),
		Error:         toString(row["error"]),
		ManifestBytes: int(toInt64(row["manifest_bytes"])),
		DurationMs:    toInt64(row["duration_ms"]),
	}
	if b, ok := row["encrypted"].(bool); ok {
		rec.Encrypted = b
	}
	if ts, err := time.Parse(time.RFC3339Nano, toString(row["ts"])); err == nil {
		rec.Timestamp = ts
	}
	return rec, true
}

// toString converts a value to string, returning "" for nil or non-strings.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 normalizes numbers decoded from JSONL.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
