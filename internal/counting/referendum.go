package counting

import (
	"sort"

	"github.com/uniwahl/zaehlwerk/internal/election"
)

// Binary referendum list numbers. An option set of exactly three tallies is
// counted in binary mode with this fixed assignment.
const (
	listNumYes     = 1
	listNumNo      = 2
	listNumAbstain = 3
)

// ReferendumConfig carries the election parameters the referendum engine
// needs: the turnout quorum and the acceptance threshold variant.
type ReferendumConfig struct {
	Quorum       int
	MajorityType election.MajorityType
}

// CountReferendum counts a referendum. Exactly three options select binary
// YES/NO/ABSTAIN mode; any other option count selects plurality mode.
func CountReferendum(tallies []election.Tally, cfg ReferendumConfig) (Result, error) {
	if _, err := validateTallies(tallies, false); err != nil {
		return nil, err
	}
	if cfg.MajorityType == "" {
		cfg.MajorityType = election.MajoritySimple
	}

	if len(tallies) == 3 {
		return countReferendumBinary(tallies, cfg)
	}
	return countReferendumPlurality(tallies, cfg)
}

// countReferendumBinary applies the YES/NO/ABSTAIN rules. A 50/50 split is a
// rejection, never a tie: ties_detected is fixed to false in this mode.
func countReferendumBinary(tallies []election.Tally, cfg ReferendumConfig) (*ReferendumBinaryResult, error) {
	var yes, no, abstain int64
	for _, t := range tallies {
		switch t.ListNum {
		case listNumYes:
			yes = t.Votes
		case listNumNo:
			no = t.Votes
		case listNumAbstain:
			abstain = t.Votes
		}
	}

	valid := yes + no
	turnout := valid + abstain
	quorumReached := turnout >= int64(cfg.Quorum)

	// Strict majority over the relevant denominator; exactly half is not a
	// majority. Integer comparison avoids any float boundary issue.
	var majority bool
	if cfg.MajorityType == election.MajorityAbsolute {
		majority = 2*yes > turnout
	} else {
		majority = 2*yes > valid
	}
	accepted := quorumReached && majority

	result := &ReferendumBinaryResult{
		Algorithm:         string(MethodYesNoReferendum),
		Accepted:          accepted,
		MajorityType:      string(cfg.MajorityType),
		Quorum:            cfg.Quorum,
		QuorumReached:     quorumReached,
		Yes:               yes,
		No:                no,
		Abstain:           abstain,
		Valid:             valid,
		Turnout:           turnout,
		YesPercentage:     formatPercent(yes, valid),
		NoPercentage:      formatPercent(no, valid),
		AbstainPercentage: formatPercent(abstain, turnout),
	}

	switch {
	case !quorumReached:
		result.Info = "Abgelehnt - Quorum nicht erreicht"
	case !majority:
		result.Info = "Abgelehnt - erforderliche Mehrheit nicht erreicht"
	default:
		result.Info = "Angenommen"
	}

	return result, nil
}

// countReferendumPlurality counts an N-option referendum: the option with
// the most votes wins, provided the quorum is met and the top position is
// not tied.
func countReferendumPlurality(tallies []election.Tally, cfg ReferendumConfig) (*ReferendumPluralityResult, error) {
	var total int64
	for _, t := range tallies {
		total += t.Votes
	}
	quorumReached := total >= int64(cfg.Quorum)

	options := make([]PluralityOption, len(tallies))
	for i, t := range tallies {
		options[i] = PluralityOption{
			ListNum:    t.ListNum,
			Candidate:  t.CandidateName(),
			Votes:      t.Votes,
			Percentage: formatPercent(t.Votes, total),
		}
	}
	sort.SliceStable(options, func(a, b int) bool {
		if options[a].Votes != options[b].Votes {
			return options[a].Votes > options[b].Votes
		}
		return options[a].ListNum < options[b].ListNum
	})

	tied := []int{}
	for _, o := range options[1:] {
		if o.Votes == options[0].Votes {
			if len(tied) == 0 {
				tied = append(tied, options[0].ListNum)
			}
			tied = append(tied, o.ListNum)
		}
	}
	tiesDetected := len(tied) > 0

	result := &ReferendumPluralityResult{
		Algorithm:     string(MethodYesNoReferendum),
		Mode:          "plurality",
		TotalVotes:    total,
		Quorum:        cfg.Quorum,
		QuorumReached: quorumReached,
		AllCandidates: options,
		Ties:          tiesDetected,
	}
	if tiesDetected {
		sort.Ints(tied)
		result.TiedCandidates = tied
	} else if quorumReached {
		winner := options[0].ListNum
		result.Winner = &winner
		result.WinnerName = options[0].Candidate
	}

	return result, nil
}
