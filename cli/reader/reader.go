package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	cblode "github.com/pithecene-io/cinebridge/lode"
	"github.com/pithecene-io/cinebridge/types"
)

// Reader abstracts read-only access to session audit records.
type Reader interface {
	ListSessions(ctx context.Context, opts ListSessionsOptions) ([]SessionRow, error)
	StatsSessions(ctx context.Context, opts ListSessionsOptions) (*SessionStats, error)
}

// StorageOptions selects the audit dataset to read.
type StorageOptions struct {
	Dataset     string
	Backend     string
	Path        string
	Region      string
	Endpoint    string
	S3PathStyle bool
}

// LodeReader reads audit records from a Lode dataset.
type LodeReader struct {
	ds lode.Dataset
}

// NewLodeReader wraps an opened dataset.
func NewLodeReader(ds lode.Dataset) *LodeReader {
	return &LodeReader{ds: ds}
}

// Open opens the dataset described by opts.
func Open(ctx context.Context, opts StorageOptions) (*LodeReader, error) {
	if opts.Path == "" {
		return nil, errors.New("storage path is required")
	}

	var (
		ds  lode.Dataset
		err error
	)
	switch opts.Backend {
	case "", "fs":
		ds, err = cblode.NewReadDatasetFS(opts.Dataset, opts.Path)
	case "s3":
		bucket, prefix := cblode.ParseS3Path(opts.Path)
		ds, err = cblode.NewReadDatasetS3(ctx, opts.Dataset, cblode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       opts.Region,
			Endpoint:     opts.Endpoint,
			UsePathStyle: opts.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q (must be fs or s3)", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewLodeReader(ds), nil
}

// ListSessions returns matching records, newest first.
// No match yields an empty slice, not an error.
func (r *LodeReader) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]SessionRow, error) {
	records, err := r.query(ctx, opts, opts.Limit)
	if err != nil {
		return nil, err
	}
	rows := make([]SessionRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, NewSessionRow(rec))
	}
	return rows, nil
}

// StatsSessions aggregates matching records. Limit is ignored.
func (r *LodeReader) StatsSessions(ctx context.Context, opts ListSessionsOptions) (*SessionStats, error) {
	records, err := r.query(ctx, opts, 0)
	if err != nil {
		return nil, err
	}
	return Aggregate(records), nil
}

func (r *LodeReader) query(ctx context.Context, opts ListSessionsOptions, limit int) ([]*types.SessionRecord, error) {
	records, err := cblode.QuerySessionRecords(ctx, r.ds, cblode.Query{
		SessionID: opts.SessionID,
		Outcome:   types.SessionOutcome(opts.Outcome),
		Day:       opts.Day,
		Limit:     limit,
	})
	if errors.Is(err, cblode.ErrNoRecordsFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit records: %w", err)
	}
	return records, nil
}

var _ Reader = (*LodeReader)(nil)
