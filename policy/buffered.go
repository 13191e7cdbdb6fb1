package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pithecene-io/cinebridge/log"
	"github.com/pithecene-io/cinebridge/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxRecords is the buffer size that triggers an automatic flush.
	MaxRecords int

	// Logger is an optional logger. If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{MaxRecords: 64}
}

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: MaxRecords must be positive")

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("policy closed")

// BufferedPolicy batches records and writes them on flush.
//
// Flush semantics are at-least-once: a failed batch stays buffered and is
// retried by the next flush, so a partial sink write may duplicate records.
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu     sync.Mutex
	buffer []*types.SessionRecord
	closed bool
	stats  statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxRecords <= 0 {
		return nil, ErrInvalidConfig
	}
	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*types.SessionRecord, 0, config.MaxRecords),
	}, nil
}

// Record buffers rec and flushes when the buffer reaches MaxRecords.
func (p *BufferedPolicy) Record(ctx context.Context, rec *types.SessionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.stats.incTotalLocked()
	p.buffer = append(p.buffer, rec)

	if len(p.buffer) >= p.config.MaxRecords {
		return p.flushLocked(ctx)
	}
	return nil
}

// Flush writes buffered records as one batch.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

func (p *BufferedPolicy) flushLocked(ctx context.Context) error {
	p.stats.incFlushLocked()
	if len(p.buffer) == 0 {
		return nil
	}

	if err := p.sink.WriteRecords(ctx, p.buffer); err != nil {
		p.stats.incErrorsLocked()
		if p.logger != nil {
			p.logger.Warn("audit flush failed", map[string]any{
				"buffered": len(p.buffer),
				"error":    err.Error(),
			})
		}
		return fmt.Errorf("flush %d records: %w", len(p.buffer), err)
	}

	p.stats.incPersistedLocked(int64(len(p.buffer)))
	p.buffer = make([]*types.SessionRecord, 0, p.config.MaxRecords)
	return nil
}

// Close flushes remaining records and closes the sink. The sink is closed
// even when the final flush fails.
func (p *BufferedPolicy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	flushErr := p.flushLocked(context.Background())
	p.mu.Unlock()

	return errors.Join(flushErr, p.sink.Close())
}

// Stats returns an atomic snapshot of policy statistics.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(int64(len(p.buffer)))
}

// Verify BufferedPolicy implements Policy.
var _ Policy = (*BufferedPolicy)(nil)
