package lode

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/cinebridge/types"
)

// FailingStore is a lode.Store that returns configurable errors.
type FailingStore struct {
	PutErr error

	PutCalls int
}

func (s *FailingStore) Put(_ context.Context, _ string, _ io.Reader) error {
	s.PutCalls++
	return s.PutErr
}

func (s *FailingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not found")
}

func (s *FailingStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *FailingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (s *FailingStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (s *FailingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*FailingStore)(nil)

// sharedFactory returns a StoreFactory that always returns store, so write
// and read datasets share one in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func sessionRecord(id string, outcome types.SessionOutcome, ts time.Time) *types.SessionRecord {
	return &types.SessionRecord{
		SessionID:     id,
		URL:           "https://cdn.example/live/video.c3u8?token=secret",
		Encrypted:     true,
		Outcome:       outcome,
		State:         "ready",
		ManifestBytes: 512,
		Timestamp:     ts,
		DurationMs:    42,
	}
}
