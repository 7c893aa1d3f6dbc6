package counting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/uniwahl/zaehlwerk/internal/election"
)

// CountMajority runs the highest-votes selection: the top seatsToFill
// candidates are elected. A tie at the cutoff is never resolved silently;
// every candidate on the cutoff vote count loses the elected flag and the
// result demands external resolution. With absolute=true the top candidate
// must additionally exceed half of all votes cast.
//
// Absolute-majority semantics are only defined for a single seat; a
// multi-seat absolute election is rejected as invalid input.
func CountMajority(tallies []election.Tally, seatsToFill int, absolute bool) (*MajorityResult, error) {
	if seatsToFill < 1 {
		return nil, fmt.Errorf("%w: seats_to_fill must be at least 1", ErrInvalidInput)
	}
	if absolute && seatsToFill > 1 {
		return nil, fmt.Errorf("%w: absolute majority requires seats_to_fill = 1", ErrInvalidInput)
	}
	totalVotes, err := validateTallies(tallies, false)
	if err != nil {
		return nil, err
	}

	candidates := make([]MajorityCandidate, len(tallies))
	for i, t := range tallies {
		candidates[i] = MajorityCandidate{
			ListNum:    t.ListNum,
			Candidate:  t.CandidateName(),
			Votes:      t.Votes,
			Percentage: formatPercent(t.Votes, totalVotes),
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Votes != candidates[b].Votes {
			return candidates[a].Votes > candidates[b].Votes
		}
		return candidates[a].ListNum < candidates[b].ListNum
	})

	electedCount := seatsToFill
	if electedCount > len(candidates) {
		electedCount = len(candidates)
	}
	for i := 0; i < electedCount; i++ {
		candidates[i].IsElected = true
	}

	// Cutoff-tie detection: a non-elected candidate with the same vote count
	// as the last elected one means the selection is ambiguous. All
	// candidates on the cutoff count are un-elected and flagged.
	cutoffVotes := candidates[electedCount-1].Votes
	tiesDetected := false
	for i := electedCount; i < len(candidates); i++ {
		if candidates[i].Votes == cutoffVotes {
			tiesDetected = true
			break
		}
	}

	tieCandidates := []int{}
	tieNames := []string{}
	if tiesDetected {
		for i := range candidates {
			if candidates[i].Votes == cutoffVotes {
				candidates[i].IsTie = true
				candidates[i].IsElected = false
				tieCandidates = append(tieCandidates, candidates[i].ListNum)
				tieNames = append(tieNames, candidates[i].Candidate)
			}
		}
		sort.Ints(tieCandidates)
	}

	elected := []MajorityCandidate{}
	for _, c := range candidates {
		if c.IsElected {
			elected = append(elected, c)
		}
	}

	result := &MajorityResult{
		SeatsToFill:        seatsToFill,
		SeatsAllocated:     len(elected),
		Elected:            elected,
		AllCandidates:      candidates,
		TotalVotes:         totalVotes,
		Ties:               tiesDetected,
		TieCandidates:      tieCandidates,
		ResolutionRequired: tiesDetected,
	}
	if tiesDetected {
		result.TieInfo = fmt.Sprintf(
			"Gleichstand bei %d Stimmen zwischen %s - Losentscheid erforderlich",
			cutoffVotes, strings.Join(tieNames, ", "))
	}

	if absolute {
		result.method = MethodHighestVotesAbsolute
		result.Algorithm = string(MethodHighestVotesAbsolute)
		result.AbsoluteMajorityRequired = true

		threshold := float64(totalVotes) / 2
		achieved := float64(candidates[0].Votes) > threshold
		result.AbsoluteMajorityAchieved = &achieved
		result.AbsoluteMajorityThreshold = &threshold
		if achieved {
			result.MajorityInfo = "Absolute Mehrheit erreicht"
		} else {
			result.MajorityInfo = "Absolute Mehrheit verfehlt - Stichwahl erforderlich"
		}
	} else {
		result.method = MethodHighestVotesSimple
		result.Algorithm = string(MethodHighestVotesSimple)
		result.AbsoluteMajorityRequired = false
		result.MajorityInfo = "Relative Mehrheit ausreichend"
	}

	return result, nil
}
