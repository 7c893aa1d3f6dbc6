package audit

import (
	"context"
	"fmt"
	"time"
)

// Verification error types reported for ballot chains.
const (
	BreakTypeHashMismatch = "HASH_MISMATCH"
	BreakTypeChainBreak   = "CHAIN_BREAK"
	BreakTypeSerialGap    = "SERIAL_GAP"
)

// RangeReport is the result of verifying a section of the audit chain.
type RangeReport struct {
	Valid      bool   `json:"valid"`
	FirstBreak *int64 `json:"first_break,omitempty"`
	Checked    int    `json:"checked"`
}

// VerifyRange walks entries lo..hi, recomputing every entry hash and
// confirming each prev_hash equals the previous entry hash. The genesis
// linkage is checked when the range starts at entry 1. Verification never
// mutates the chain; a broken link is reported, not repaired.
func VerifyRange(ctx context.Context, chain Chain, genesis string, lo, hi int64) (*RangeReport, error) {
	if genesis == "" {
		genesis = GenesisHash
	}
	entries, err := chain.Range(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain range: %w", err)
	}

	report := &RangeReport{Valid: true, Checked: len(entries)}
	fail := func(id int64) *RangeReport {
		report.Valid = false
		report.FirstBreak = &id
		return report
	}

	var prevHash string
	var prevID int64
	for i, e := range entries {
		if i == 0 {
			if e.ID == 1 && e.PrevHash != genesis {
				return fail(e.ID), nil
			}
		} else {
			if e.ID != prevID+1 {
				return fail(e.ID), nil
			}
			if e.PrevHash != prevHash {
				return fail(e.ID), nil
			}
		}

		recomputed, err := ComputeEntryHash(e)
		if err != nil {
			return nil, fmt.Errorf("failed to recompute hash for entry %d: %w", e.ID, err)
		}
		if recomputed != e.EntryHash {
			return fail(e.ID), nil
		}

		prevHash = e.EntryHash
		prevID = e.ID
	}

	return report, nil
}

// BallotVerificationError describes one broken link found in a ballot chain.
type BallotVerificationError struct {
	Type       string `json:"type"`
	ElectionID string `json:"electionId"`
	SerialID   int64  `json:"serialId"`
	Message    string `json:"message"`
}

// BallotReport is the result of verifying every per-election ballot chain.
type BallotReport struct {
	Valid            bool                      `json:"valid"`
	Summary          string                    `json:"summary"`
	Errors           []BallotVerificationError `json:"errors"`
	TotalBallots     int                       `json:"totalBallots"`
	ElectionsChecked int                       `json:"electionsChecked"`
	CheckedAt        time.Time                 `json:"checkedAt"`
}

// VerifyBallotChains walks every election's ballot chain, recomputing hashes
// and serial linkage, and reports all broken links.
func VerifyBallotChains(ctx context.Context, chains BallotChains, genesis string) (*BallotReport, error) {
	if genesis == "" {
		genesis = GenesisHash
	}
	elections, err := chains.Elections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ballot chains: %w", err)
	}

	report := &BallotReport{
		Valid:            true,
		Errors:           []BallotVerificationError{},
		ElectionsChecked: len(elections),
		CheckedAt:        time.Now().UTC(),
	}

	for _, electionID := range elections {
		chain, err := chains.ChainFor(ctx, electionID)
		if err != nil {
			return nil, fmt.Errorf("failed to read ballot chain for election %s: %w", electionID, err)
		}
		report.TotalBallots += len(chain)

		prevHash := genesis
		var prevSerial int64
		for _, b := range chain {
			if b.SerialID != prevSerial+1 {
				report.Errors = append(report.Errors, BallotVerificationError{
					Type:       BreakTypeSerialGap,
					ElectionID: electionID,
					SerialID:   b.SerialID,
					Message:    fmt.Sprintf("expected serial %d, found %d", prevSerial+1, b.SerialID),
				})
			}
			if b.PrevBallotHash != prevHash {
				report.Errors = append(report.Errors, BallotVerificationError{
					Type:       BreakTypeChainBreak,
					ElectionID: electionID,
					SerialID:   b.SerialID,
					Message:    "prev_ballot_hash does not match previous ballot hash",
				})
			}
			recomputed, err := ComputeBallotHash(b)
			if err != nil {
				return nil, fmt.Errorf("failed to recompute ballot hash: %w", err)
			}
			if recomputed != b.BallotHash {
				report.Errors = append(report.Errors, BallotVerificationError{
					Type:       BreakTypeHashMismatch,
					ElectionID: electionID,
					SerialID:   b.SerialID,
					Message:    "stored ballot_hash does not match recomputed hash",
				})
			}

			prevHash = b.BallotHash
			prevSerial = b.SerialID
		}
	}

	report.Valid = len(report.Errors) == 0
	if report.Valid {
		report.Summary = fmt.Sprintf("%d ballots across %d elections verified, chain intact",
			report.TotalBallots, report.ElectionsChecked)
	} else {
		report.Summary = fmt.Sprintf("%d broken links found across %d elections",
			len(report.Errors), report.ElectionsChecked)
	}

	return report, nil
}
