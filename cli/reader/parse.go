package reader

import (
	"fmt"
	"time"

	"github.com/pithecene-io/cinebridge/engine/headless"
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/types"
)

// NewManifestReport summarizes manifest content resolved from rawURL.
// The URL is redacted; content is not retained.
func NewManifestReport(rawURL string, encrypted bool, content string, took time.Duration) (*ManifestReport, error) {
	if err := protocol.ValidateManifest(content); err != nil {
		return nil, err
	}
	summary, err := headless.Summarize(content)
	if err != nil {
		return nil, fmt.Errorf("manifest report: %w", err)
	}

	report := &ManifestReport{
		URL:            types.RedactURL(rawURL),
		Encrypted:      encrypted,
		Bytes:          len(content),
		Kind:           summary.Kind,
		Version:        summary.Version,
		Segments:       summary.Segments,
		TargetDuration: summary.TargetDuration,
		TotalDuration:  summary.TotalDuration,
		Closed:         summary.Closed,
		Variants:       make([]VariantRow, 0, len(summary.Variants)),
		ResolvedMs:     took.Milliseconds(),
	}
	for _, v := range summary.Variants {
		report.Variants = append(report.Variants, VariantRow{
			URI:        v.URI,
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
			Codecs:     v.Codecs,
		})
	}
	return report, nil
}

// Aggregate folds audit records into stats. Records may arrive in any order.
func Aggregate(records []*types.SessionRecord) *SessionStats {
	stats := &SessionStats{}
	sessions := make(map[string]struct{})
	encrypted := make(map[string]struct{})
	var readyMs int64

	for _, rec := range records {
		if rec == nil {
			continue
		}
		stats.Records++
		sessions[rec.SessionID] = struct{}{}
		if rec.Encrypted {
			encrypted[rec.SessionID] = struct{}{}
		}

		switch rec.Outcome {
		case types.OutcomeReady:
			stats.Ready++
			readyMs += rec.DurationMs
			stats.ManifestBytes += int64(rec.ManifestBytes)
		case types.OutcomeResolveFailed:
			stats.ResolveFailed++
		case types.OutcomeFailed:
			stats.Failed++
		case types.OutcomeDestroyed:
			stats.Destroyed++
		}

		if rec.ErrorKind != "" {
			if stats.ByErrorKind == nil {
				stats.ByErrorKind = make(map[string]int)
			}
			stats.ByErrorKind[rec.ErrorKind]++
		}

		if !rec.Timestamp.IsZero() {
			ts := rec.Timestamp
			if stats.FirstSeen == nil || ts.Before(*stats.FirstSeen) {
				stats.FirstSeen = &ts
			}
			if stats.LastSeen == nil || ts.After(*stats.LastSeen) {
				stats.LastSeen = &ts
			}
			if stats.Days == nil {
				stats.Days = make(map[string]int)
			}
			stats.Days[ts.UTC().Format(time.DateOnly)]++
		}
	}

	stats.Sessions = len(sessions)
	stats.Encrypted = len(encrypted)
	if stats.Ready > 0 {
		stats.AvgReadyMs = readyMs / int64(stats.Ready)
	}
	return stats
}
