// Package lode persists session audit records to a Lode dataset.
//
// Records are stored as JSONL under a Hive layout partitioned by day and
// outcome. Storage can be the local filesystem, memory or S3.
package lode

import (
	"context"
	"sync"

	"github.com/pithecene-io/cinebridge/policy"
	"github.com/pithecene-io/cinebridge/types"
)

// Config holds Lode sink configuration.
type Config struct {
	// Dataset is the Lode dataset ID. Empty means DefaultDataset.
	Dataset string
	// Source identifies the writer (host or deployment name). Optional.
	Source string
}

// Client abstracts the Lode storage client.
type Client interface {
	// WriteRecords writes a batch of records, preserving order.
	WriteRecords(ctx context.Context, records []*types.SessionRecord) error

	// Close releases client resources.
	Close() error
}

// Sink is a Lode-backed implementation of policy.Sink.
type Sink struct {
	client Client
}

// NewSink creates a new Lode sink.
func NewSink(client Client) *Sink {
	return &Sink{client: client}
}

// WriteRecords implements policy.Sink.
func (s *Sink) WriteRecords(ctx context.Context, records []*types.SessionRecord) error {
	return s.client.WriteRecords(ctx, records)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

// Verify Sink implements policy.Sink.
var _ policy.Sink = (*Sink)(nil)

// StubClient is a test client that keeps writes in memory.
type StubClient struct {
	mu      sync.Mutex
	Batches [][]*types.SessionRecord
	Closed  bool
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteRecords implements Client.
func (c *StubClient) WriteRecords(_ context.Context, records []*types.SessionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Batches = append(c.Batches, records)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
