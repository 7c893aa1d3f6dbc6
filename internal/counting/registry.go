package counting

import (
	"fmt"

	"github.com/uniwahl/zaehlwerk/internal/election"
)

// Method identifies one of the five counting algorithms. The set is closed:
// lookup rejects anything else, and no dynamic dispatch over an open
// namespace ever happens.
type Method string

// The closed set of counting methods.
const (
	MethodSainteLague          Method = "sainte_lague"
	MethodHareNiemeyer         Method = "hare_niemeyer"
	MethodHighestVotesSimple   Method = "highest_votes_simple"
	MethodHighestVotesAbsolute Method = "highest_votes_absolute"
	MethodYesNoReferendum      Method = "yes_no_referendum"
)

// ParseMethod decodes a method identifier from config or storage.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodSainteLague, MethodHareNiemeyer, MethodHighestVotesSimple,
		MethodHighestVotesAbsolute, MethodYesNoReferendum:
		return Method(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// CompatibleWith reports whether the method is valid for the given election
// type: majority_vote pairs with the highest_votes variants, proportional
// representation with the divisor and largest-remainder methods, and
// referendum with yes_no_referendum.
func (m Method) CompatibleWith(t election.ElectionType) bool {
	switch m {
	case MethodHighestVotesSimple, MethodHighestVotesAbsolute:
		return t == election.TypeMajorityVote
	case MethodSainteLague, MethodHareNiemeyer:
		return t == election.TypeProportionalRepresentation
	case MethodYesNoReferendum:
		return t == election.TypeReferendum
	default:
		return false
	}
}

// EngineFunc runs one counting algorithm over aggregated tallies. Engines are
// pure functions: no I/O, no shared state, deterministic output.
type EngineFunc func(tallies []election.Tally, e *election.Election) (Result, error)

// Registry maps method identifiers to engine implementations. It is populated
// once at construction and read-only afterwards.
type Registry struct {
	engines map[Method]EngineFunc
}

// NewRegistry creates the registry with all five engines wired.
func NewRegistry() *Registry {
	return &Registry{
		engines: map[Method]EngineFunc{
			MethodSainteLague: func(tallies []election.Tally, e *election.Election) (Result, error) {
				return CountSainteLague(tallies, e.SeatsToFill)
			},
			MethodHareNiemeyer: func(tallies []election.Tally, e *election.Election) (Result, error) {
				return CountHareNiemeyer(tallies, e.SeatsToFill)
			},
			MethodHighestVotesSimple: func(tallies []election.Tally, e *election.Election) (Result, error) {
				return CountMajority(tallies, e.SeatsToFill, false)
			},
			MethodHighestVotesAbsolute: func(tallies []election.Tally, e *election.Election) (Result, error) {
				return CountMajority(tallies, e.SeatsToFill, true)
			},
			MethodYesNoReferendum: func(tallies []election.Tally, e *election.Election) (Result, error) {
				return CountReferendum(tallies, ReferendumConfig{
					Quorum:       e.Quorum,
					MajorityType: e.MajorityType,
				})
			},
		},
	}
}

// Lookup returns the engine for a method identifier.
// Returns ErrUnknownMethod for anything outside the closed set.
func (r *Registry) Lookup(method string) (EngineFunc, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	engine, ok := r.engines[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return engine, nil
}
