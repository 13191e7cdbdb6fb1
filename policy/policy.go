// Package policy controls how session audit records reach storage.
//
// A Policy sits between the session and a Sink. Strict writes every record
// through, Buffered batches records and writes them on flush, and Noop
// accepts records without persisting them.
//
// Audit records are never dropped: a policy either persists a record or
// returns an error for it.
package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/cinebridge/types"
)

// Policy defines the audit write policy interface.
type Policy interface {
	// Record accepts one session record.
	Record(ctx context.Context, rec *types.SessionRecord) error

	// Flush writes any buffered records.
	Flush(ctx context.Context) error

	// Close releases policy resources. Buffered policies flush first.
	Close() error

	// Stats returns a consistent snapshot of policy counters.
	Stats() Stats
}

// Stats represents policy observability counters.
type Stats struct {
	// TotalRecords is the number of records received.
	TotalRecords int64
	// RecordsPersisted is the number of records written to the sink.
	RecordsPersisted int64
	// Buffered is the number of records waiting for a flush.
	Buffered int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the number of failed sink writes.
	Errors int64
}

// statsRecorder is a thread-safe Stats holder.
//
// Lock discipline:
//   - StrictPolicy and NoopPolicy use the locking methods.
//   - BufferedPolicy uses the Locked methods only while holding its own mu,
//     so buffer state and counters change atomically.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) incTotal() {
	r.mu.Lock()
	r.stats.TotalRecords++
	r.mu.Unlock()
}

func (r *statsRecorder) incPersisted(n int64) {
	r.mu.Lock()
	r.stats.RecordsPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// --- Locked methods for BufferedPolicy ---
// Caller must hold BufferedPolicy.mu.

func (r *statsRecorder) incTotalLocked() {
	r.stats.TotalRecords++
}

func (r *statsRecorder) incPersistedLocked(n int64) {
	r.stats.RecordsPersisted += n
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) snapshotLocked(buffered int64) Stats {
	s := r.stats
	s.Buffered = buffered
	return s
}
