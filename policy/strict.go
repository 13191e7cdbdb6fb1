package policy

import (
	"context"

	"github.com/pithecene-io/cinebridge/types"
)

// StrictPolicy writes each record to the sink before Record returns.
// Sink errors are returned to the caller.
type StrictPolicy struct {
	sink  Sink
	stats statsRecorder
}

// NewStrictPolicy creates a strict policy writing to sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink}
}

// Record writes rec immediately as a batch of one.
func (p *StrictPolicy) Record(ctx context.Context, rec *types.SessionRecord) error {
	p.stats.incTotal()

	if err := p.sink.WriteRecords(ctx, []*types.SessionRecord{rec}); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incPersisted(1)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

// Verify StrictPolicy implements Policy.
var _ Policy = (*StrictPolicy)(nil)
