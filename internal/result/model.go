// Package result implements the versioned counting-result store: every
// counting run produces a new immutable version per election, finalization
// locks a version exactly once, and the engines' read view exposes aggregate
// tallies only, never individual ballots.
package result

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested result does not exist.
	ErrNotFound = errors.New("counting result not found")
	// ErrAlreadyFinalized is returned when finalize hits a locked version, or
	// a write targets a finalized record.
	ErrAlreadyFinalized = errors.New("counting result already finalized")
	// ErrBusy is returned when a concurrent counting run holds the
	// per-election lock. Callers may retry.
	ErrBusy = errors.New("counting in progress for this election")
	// ErrNoTallies is returned when an election has no tally rows.
	ErrNoTallies = errors.New("no tallies recorded for this election")
)

// Record is one stored counting result version. Data holds the algorithm
// output in canonical JSON; it never changes after insert, and after
// finalization the whole record is immutable.
type Record struct {
	ResultID     string          `json:"result_id"`
	ElectionID   string          `json:"election_id"`
	Version      int             `json:"version"`
	Algorithm    string          `json:"algorithm"`
	CountedAt    time.Time       `json:"counted_at"`
	Finalized    bool            `json:"finalized"`
	TiesDetected bool            `json:"ties_detected"`
	Data         json.RawMessage `json:"result_data"`
}
