package counting

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/uniwahl/zaehlwerk/internal/election"
)

// CountHareNiemeyer runs the largest-remainder method with the Hare quota:
// every candidate receives floor(votes/total * seats) seats, and the
// remaining seats go to the largest fractional remainders. Quota arithmetic
// is exact (big.Rat); floats only appear in the serialized 4-decimal fields.
func CountHareNiemeyer(tallies []election.Tally, seatsToFill int) (*HareNiemeyerResult, error) {
	if seatsToFill < 1 {
		return nil, fmt.Errorf("%w: seats_to_fill must be at least 1", ErrInvalidInput)
	}
	totalVotes, err := validateTallies(tallies, true)
	if err != nil {
		return nil, err
	}

	type line struct {
		idx       int
		quota     *big.Rat
		remainder *big.Rat
		seats     int
	}

	lines := make([]*line, len(tallies))
	allocated := 0
	for i, t := range tallies {
		quota := new(big.Rat).SetFrac64(t.Votes*int64(seatsToFill), totalVotes)
		floor := new(big.Int).Quo(quota.Num(), quota.Denom())
		seats := int(floor.Int64())
		remainder := new(big.Rat).Sub(quota, new(big.Rat).SetInt(floor))
		lines[i] = &line{idx: i, quota: quota, remainder: remainder, seats: seats}
		allocated += seats
	}

	// Remainder distribution order: remainder desc, then votes desc, then
	// listnum asc. This is the deterministic resolution the tie flags refer to.
	order := make([]*line, len(lines))
	copy(order, lines)
	sort.SliceStable(order, func(a, b int) bool {
		if c := order[a].remainder.Cmp(order[b].remainder); c != 0 {
			return c > 0
		}
		if tallies[order[a].idx].Votes != tallies[order[b].idx].Votes {
			return tallies[order[a].idx].Votes > tallies[order[b].idx].Votes
		}
		return tallies[order[a].idx].ListNum < tallies[order[b].idx].ListNum
	})

	remaining := seatsToFill - allocated
	for i := 0; i < remaining && i < len(order); i++ {
		order[i].seats++
		allocated++
	}

	tieInfo := []string{}
	tieSet := map[int]bool{}
	tiesDetected := false

	// Remainder tie at the cutoff: the last remainder that won a seat is
	// within tolerance of the first that did not.
	if remaining > 0 && remaining < len(order) {
		cut := order[remaining-1]
		next := order[remaining]
		diff := new(big.Rat).Sub(cut.remainder, next.remainder)
		diff.Abs(diff)
		if diff.Cmp(remainderTieEpsilon) < 0 {
			tiesDetected = true
			tieSet[tallies[cut.idx].ListNum] = true
			tieSet[tallies[next.idx].ListNum] = true
			tieInfo = append(tieInfo, fmt.Sprintf(
				"Restsitz-Gleichstand zwischen %s und %s - Losentscheid erforderlich",
				tallies[cut.idx].CandidateName(), tallies[next.idx].CandidateName()))
		}
	}

	// Vote-equity violation: equal votes with unequal seat counts.
	for i := range lines {
		for j := i + 1; j < len(lines); j++ {
			if tallies[i].Votes == tallies[j].Votes && lines[i].seats != lines[j].seats {
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

	if allocated != seatsToFill {
		return nil, fmt.Errorf("%w: allocated %d seats, expected %d",
			ErrInternalInconsistency, allocated, seatsToFill)
	}

	allocation := make([]QuotaSeat, len(lines))
	for i, l := range lines {
		quotaF, _ := l.quota.Float64()
		remainderF, _ := l.remainder.Float64()
		allocation[i] = QuotaSeat{
			ListNum:   tallies[i].ListNum,
			Candidate: tallies[i].CandidateName(),
			Votes:     tallies[i].Votes,
			Quota:     round4(quotaF),
			Seats:     l.seats,
			Remainder: round4(remainderF),
		}
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

	result := &HareNiemeyerResult{
		Algorithm:   string(MethodHareNiemeyer),
		SeatsToFill: seatsToFill,
		TotalVotes:  totalVotes,
		Allocation:  allocation,
		Ties:        tiesDetected,
	}
	if tiesDetected {
		result.TieInfo = tieInfo
		result.TieCandidates = sortedListNums(tieSet)
	}
	return result, nil
}
