package policy

import (
	"context"

	"github.com/pithecene-io/cinebridge/types"
)

// NoopPolicy accepts records without persisting them.
// Used when no storage is configured.
type NoopPolicy struct {
	stats statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{}
}

// Record counts rec and discards it.
func (p *NoopPolicy) Record(_ context.Context, _ *types.SessionRecord) error {
	p.stats.incTotal()
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}

// Verify NoopPolicy implements Policy.
var _ Policy = (*NoopPolicy)(nil)
