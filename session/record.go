package session

import (
	"context"
	"time"

	"github.com/pithecene-io/cinebridge/adapter"
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/types"
)

// record queues an outcome for the audit policy and the adapter. Outcomes
// are delivered in transition order on the session's output loop, off the
// engine scheduler. Outcomes after Destroy has drained are dropped.
func (s *Session) record(outcome types.SessionOutcome, cause error) {
	if s.opts.Audit == nil && s.opts.Adapter == nil {
		return
	}

	s.mu.Lock()
	rec := &types.SessionRecord{
		SessionID:     s.meta.SessionID,
		URL:           types.RedactURL(s.meta.URL),
		Encrypted:     s.meta.Encrypted,
		Outcome:       outcome,
		State:         string(s.state),
		ManifestBytes: s.manifestBytes,
		Timestamp:     time.Now().UTC(),
	}
	if !s.started.IsZero() {
		rec.DurationMs = time.Since(s.started).Milliseconds()
	}
	logger := s.logger
	s.mu.Unlock()

	if cause != nil {
		rec.ErrorKind = protocol.Kind(cause)
		rec.Error = cause.Error()
	}

	s.outputs.Post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PublishTimeout)
		defer cancel()

		if s.opts.Audit != nil {
			if err := s.opts.Audit.Record(ctx, rec); err != nil {
				logger.Warn("audit record failed", map[string]any{
					"outcome": string(outcome),
					"error":   err.Error(),
				})
			}
		}
		if s.opts.Adapter != nil {
			if err := s.opts.Adapter.Publish(ctx, adapter.EventFromRecord(rec)); err != nil {
				s.collector.IncPublishFailure()
				logger.Warn("outcome publish failed", map[string]any{
					"outcome": string(outcome),
					"error":   err.Error(),
				})
				return
			}
			s.collector.IncPublishSuccess()
		}
	})
}
