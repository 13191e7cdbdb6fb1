package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/cinebridge/types"
)

// DefaultDataset is the dataset ID audit records are written to.
const DefaultDataset = "cinebridge"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "outcome"}

// LodeClient is a Lode-backed implementation of Client.
// Rows are partitioned by day and outcome.
type LodeClient struct {
	dataset lode.Dataset
	config  Config
}

// NewLodeClient creates a client with filesystem storage rooted at root.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a client over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{dataset: ds, config: cfg}, nil
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// ErrInvalidRecord is returned when a record fails validation.
var ErrInvalidRecord = errors.New("invalid session record")

// WriteRecords writes records as one snapshot, preserving order.
// The whole batch is rejected if any record is invalid.
func (c *LodeClient) WriteRecords(ctx context.Context, records []*types.SessionRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]any, 0, len(records))
	for i, rec := range records {
		if rec == nil {
			return fmt.Errorf("%w: record %d is nil", ErrInvalidRecord, i)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrInvalidRecord, i, err)
		}
		rows = append(rows, toSessionRecordMap(rec, c.config))
	}

	if _, err := c.dataset.Write(ctx, rows, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// Dataset returns the underlying dataset for read-back queries.
func (c *LodeClient) Dataset() lode.Dataset {
	return c.dataset
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	return nil
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
