package lode

import (
	"context"

	"github.com/pithecene-io/cinebridge/metrics"
	"github.com/pithecene-io/cinebridge/policy"
	"github.com/pithecene-io/cinebridge/types"
)

// InstrumentedSink wraps a policy.Sink and counts audit writes.
// Each WriteRecords call increments audit_write_success or
// audit_write_failure on the collector.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
// A nil collector is allowed.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteRecords delegates to the inner sink and records the outcome.
func (s *InstrumentedSink) WriteRecords(ctx context.Context, records []*types.SessionRecord) error {
	err := s.inner.WriteRecords(ctx, records)
	if err != nil {
		s.collector.IncAuditWriteFailure()
	} else {
		s.collector.IncAuditWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

// Verify InstrumentedSink implements policy.Sink.
var _ policy.Sink = (*InstrumentedSink)(nil)
