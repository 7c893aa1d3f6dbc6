package counting

import "errors"

var (
	// ErrInvalidInput is returned when an engine precondition is violated:
	// missing or invalid seats_to_fill, empty tally set, negative vote counts.
	ErrInvalidInput = errors.New("invalid counting input")

	// ErrUnknownMethod is returned by the registry for an identifier outside
	// the closed method set.
	ErrUnknownMethod = errors.New("unknown counting method")

	// ErrInternalInconsistency is returned when a post-algorithm invariant is
	// violated, e.g. allocated seats do not sum to seats_to_fill.
	ErrInternalInconsistency = errors.New("internal inconsistency in counting result")

	// ErrBusy is returned when a concurrent counting run holds the
	// per-election lock. Callers may retry.
	ErrBusy = errors.New("counting already in progress for this election")

	// ErrElectionNotClosed is returned when counting is attempted on an
	// election that is not in the closed state.
	ErrElectionNotClosed = errors.New("election is not closed")
)
