package result

import (
	"context"

	"github.com/uniwahl/zaehlwerk/internal/audit"
	"github.com/uniwahl/zaehlwerk/internal/election"
)

// Store is the result-store contract the counting service works against.
//
// RecordCount and Finalize couple the result write with the matching audit
// entry in one atomic unit: either both are persisted or neither is. The
// entryFor callback receives the assigned version, since versions are only
// allocated inside the write.
type Store interface {
	// AggregatedTallies returns the aggregate per-option totals for an
	// election, ordered by listnum. Aggregates only; counting must never
	// see per-voter data.
	AggregatedTallies(ctx context.Context, electionID string) ([]election.Tally, error)

	// RecordCount stores rec as the next version for its election and appends
	// the audit entry produced by entryFor(version), atomically. Returns
	// ErrBusy when a concurrent count holds the election's lock.
	RecordCount(ctx context.Context, rec *Record, entryFor func(version int) audit.NewEntry) (*Record, error)

	// Finalize marks (electionID, version) as final exactly once and appends
	// the audit entry, atomically. Returns ErrAlreadyFinalized on repeat
	// calls and ErrNotFound for unknown versions.
	Finalize(ctx context.Context, electionID string, version int, entry audit.NewEntry) error

	// GetResult returns the stored result for a version; version <= 0 means
	// the latest one.
	GetResult(ctx context.Context, electionID string, version int) (*Record, error)

	// LatestVersion returns the highest stored version, 0 when none exist.
	LatestVersion(ctx context.Context, electionID string) (int, error)
}
