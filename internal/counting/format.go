package counting

import (
	"fmt"
	"math"
	"math/big"
)

// Tie tolerances. Quotient comparisons in the divisor method and remainder
// comparisons in the largest-remainder method are carried out with these
// fixed epsilons; they are part of the observable counting contract.
const quotientTieEpsilon = 1e-4

// remainderTieEpsilon stays rational so the largest-remainder comparison is
// exact, without float rounding at the cutoff.
var remainderTieEpsilon = big.NewRat(1, 1000)

// formatPercent renders numerator/denominator as a percentage with exactly
// two decimal places, rounding half away from zero. A zero denominator
// yields "0.00" (the contract for empty referendums and zero-vote totals).
func formatPercent(numerator, denominator int64) string {
	if denominator == 0 {
		return "0.00"
	}
	// Scaled integer arithmetic, no float drift: percentage * 100.
	scaled := (numerator*10000 + denominator/2) / denominator
	return fmt.Sprintf("%d.%02d", scaled/100, scaled%100)
}

// round4 rounds a value to four decimal places for serialization. Tie
// detection always uses the unrounded value.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
