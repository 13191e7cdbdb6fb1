package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/cinebridge/types"
)

// ErrNoRecordsFound is returned when no audit record matches a query.
var ErrNoRecordsFound = errors.New("no session records found")

// Query filters audit records. Empty fields match everything.
type Query struct {
	SessionID string
	Outcome   types.SessionOutcome
	Day       string
	// Limit caps the number of returned records. Zero means no cap.
	Limit int
}

// QuerySessionRecords reads matching records, newest first.
//
// Partition paths pre-filter snapshots; record fields are authoritative.
// Rows seen in more than one snapshot are returned once.
func QuerySessionRecords(ctx context.Context, ds lode.Dataset, q Query) ([]*types.SessionRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	seen := make(map[string]struct{})
	var out []*types.SessionRecord
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "day", q.Day) {
			continue
		}
		if !snapshotMatchesFilter(snap, "outcome", string(q.Outcome)) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		for _, item := range data {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rec, ok := fromSessionRecordMap(row)
			if !ok || !q.matches(rec, row) {
				continue
			}
			key := rec.SessionID + "|" + string(rec.Outcome) + "|" + toString(row["ts"])
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, rec)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoRecordsFound
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (q Query) matches(rec *types.SessionRecord, row map[string]any) bool {
	if q.SessionID != "" && rec.SessionID != q.SessionID {
		return false
	}
	if q.Outcome != "" && rec.Outcome != q.Outcome {
		return false
	}
	if q.Day != "" && toString(row["day"]) != q.Day {
		return false
	}
	return true
}
