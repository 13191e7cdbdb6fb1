package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/cinebridge/types"
)

// Sink abstracts persistence for policies.
// Methods are batch-oriented so strict (batch of 1) and buffered policies
// share one interface.
type Sink interface {
	// WriteRecords persists a batch of records, preserving order.
	WriteRecords(ctx context.Context, records []*types.SessionRecord) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that keeps writes in memory.
type StubSink struct {
	mu sync.Mutex

	// Batches is the number of WriteRecords calls that succeeded.
	Batches int64
	// Written stores all written records in order.
	Written []*types.SessionRecord
	// Closed indicates whether Close was called.
	Closed bool

	// ErrorOnWrite, if non-nil, is returned by WriteRecords.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteRecords records the batch.
func (s *StubSink) WriteRecords(_ context.Context, records []*types.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.Batches++
	s.Written = append(s.Written, records...)
	return nil
}

// SetError sets the error returned by later writes.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorOnWrite = err
}

// Records returns a copy of the written records.
func (s *StubSink) Records() []*types.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.SessionRecord(nil), s.Written...)
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (s *StubSink) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closed
}

// Verify StubSink implements Sink.
var _ Sink = (*StubSink)(nil)
