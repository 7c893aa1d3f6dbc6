// Package counting implements the election counting engines, the algorithm
// registry, and the counting service that turns aggregated tallies into
// versioned, audited results.
package counting

import (
	"fmt"

	"github.com/uniwahl/zaehlwerk/internal/election"
)

// validateTallies checks the shared engine preconditions: a non-empty tally
// set with non-negative vote counts. requirePositiveTotal additionally
// demands at least one vote overall (divisor methods cannot run on zero).
func validateTallies(tallies []election.Tally, requirePositiveTotal bool) (int64, error) {
	if len(tallies) == 0 {
		return 0, fmt.Errorf("%w: empty tally set", ErrInvalidInput)
	}

	var total int64
	for _, t := range tallies {
		if t.Votes < 0 {
			return 0, fmt.Errorf("%w: negative votes for listnum %d", ErrInvalidInput, t.ListNum)
		}
		total += t.Votes
	}

	if requirePositiveTotal && total == 0 {
		return 0, fmt.Errorf("%w: total votes must be positive", ErrInvalidInput)
	}

	return total, nil
}
