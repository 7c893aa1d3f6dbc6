package counting

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/uniwahl/zaehlwerk/internal/election"
)

// CountSainteLague runs the Sainte-Laguë divisor method: seats are assigned
// one round at a time to the candidate with the highest quotient
// votes/(2*seats+1). Every round is documented as a calculation step, and
// quotient ties are flagged but resolved deterministically by lowest listnum
// so allocation always completes.
func CountSainteLague(tallies []election.Tally, seatsToFill int) (*SainteLagueResult, error) {
	if seatsToFill < 1 {
		return nil, fmt.Errorf("%w: seats_to_fill must be at least 1", ErrInvalidInput)
	}
	totalVotes, err := validateTallies(tallies, true)
	if err != nil {
		return nil, err
	}

	seats := make([]int, len(tallies))
	steps := make([]CalculationStep, 0, seatsToFill)
	tieInfo := []string{}
	tieSet := map[int]bool{}
	tiesDetected := false

	for round := 1; round <= seatsToFill; round++ {
		// Highest quotient wins the round. Scanning in tally order makes the
		// initial pick deterministic before tie resolution even applies.
		winner := 0
		winnerQ := float64(tallies[0].Votes) / float64(2*seats[0]+1)
		for i := 1; i < len(tallies); i++ {
			q := float64(tallies[i].Votes) / float64(2*seats[i]+1)
			if q > winnerQ {
				winner = i
				winnerQ = q
			}
		}

		// A round tie exists when another candidate's quotient is within the
		// tolerance of the winner's, or when votes and current seats are both
		// equal (the exact-arithmetic form of the same situation).
		tied := []int{winner}
		for i := range tallies {
			if i == winner {
				continue
			}
			q := float64(tallies[i].Votes) / float64(2*seats[i]+1)
			if math.Abs(q-winnerQ) < quotientTieEpsilon ||
				(tallies[i].Votes == tallies[winner].Votes && seats[i] == seats[winner]) {
				tied = append(tied, i)
			}
		}

		if len(tied) >= 2 {
			tiesDetected = true
			names := make([]string, 0, len(tied))
			for _, i := range tied {
				tieSet[tallies[i].ListNum] = true
				names = append(names, tallies[i].CandidateName())
				// Lowest listnum proceeds; the tie stays visible to the operator.
				if tallies[i].ListNum < tallies[winner].ListNum {
					winner = i
				}
			}
			sort.Strings(names)
			tieInfo = append(tieInfo, fmt.Sprintf(
				"Runde %d: Gleichstand zwischen %s - Losentscheid erforderlich",
				round, strings.Join(names, ", ")))
		}

		divisor := 2*seats[winner] + 1
		seats[winner]++
		steps = append(steps, CalculationStep{
			Round:     round,
			ListNum:   tallies[winner].ListNum,
			Candidate: tallies[winner].CandidateName(),
			Quotient:  round4(float64(tallies[winner].Votes) / float64(divisor)),
			Divisor:   divisor,
			SeatsNow:  seats[winner],
		})
	}

	// Vote-equity post-check: equal votes must not silently yield unequal
	// seat counts.
	for i := range tallies {
		for j := i + 1; j < len(tallies); j++ {
			if tallies[i].Votes == tallies[j].Votes && seats[i] != seats[j] {
				tiesDetected = true
				if !tieSet[tallies[i].ListNum] || !tieSet[tallies[j].ListNum] {
					tieInfo = append(tieInfo, fmt.Sprintf(
						"Stimmengleichheit zwischen %s und %s bei ungleicher Sitzverteilung - Losentscheid erforderlich",
						tallies[i].CandidateName(), tallies[j].CandidateName()))
				}
				tieSet[tallies[i].ListNum] = true
				tieSet[tallies[j].ListNum] = true
			}
		}
	}

	allocation := make([]ProportionalSeat, len(tallies))
	allocated := 0
	for i, t := range tallies {
		allocation[i] = ProportionalSeat{
			ListNum:   t.ListNum,
			Candidate: t.CandidateName(),
			Votes:     t.Votes,
			Seats:     seats[i],
			IsTie:     tieSet[t.ListNum],
		}
		allocated += seats[i]
	}
	sort.SliceStable(allocation, func(a, b int) bool {
		if allocation[a].Seats != allocation[b].Seats {
			return allocation[a].Seats > allocation[b].Seats
		}
		if allocation[a].Votes != allocation[b].Votes {
			return allocation[a].Votes > allocation[b].Votes
		}
		return allocation[a].ListNum < allocation[b].ListNum
	})

	if allocated != seatsToFill {
		return nil, fmt.Errorf("%w: allocated %d seats, expected %d",
			ErrInternalInconsistency, allocated, seatsToFill)
	}

	result := &SainteLagueResult{
		Algorithm:        string(MethodSainteLague),
		SeatsToFill:      seatsToFill,
		TotalVotes:       totalVotes,
		Allocation:       allocation,
		CalculationSteps: steps,
		Ties:             tiesDetected,
	}
	if tiesDetected {
		result.TieInfo = tieInfo
		result.TieCandidates = sortedListNums(tieSet)
	}
	return result, nil
}

// sortedListNums returns the keys of a listnum set in ascending order.
func sortedListNums(set map[int]bool) []int {
	nums := make([]int, 0, len(set))
	for n := range set {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}
