package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// BallotChains stores the per-election ballot hash chains. Each election has
// its own chain with sequential serial ids; the first ballot links to the
// same genesis constant as the audit chain.
type BallotChains interface {
	// RecordBallot appends a ballot to the election's chain and returns the
	// committed record including serial id and hashes.
	RecordBallot(ctx context.Context, electionID string, payload map[string]any) (*BallotRecord, error)

	// Elections lists all election ids that have at least one ballot.
	Elections(ctx context.Context) ([]string, error)

	// ChainFor returns the full ballot chain of one election in serial order.
	ChainFor(ctx context.Context, electionID string) ([]*BallotRecord, error)
}

// InMemoryBallotChains is an in-memory implementation of BallotChains.
// Used for testing and development. Thread-safe via Mutex.
type InMemoryBallotChains struct {
	mu      sync.Mutex
	genesis string
	chains  map[string][]*BallotRecord
}

// NewInMemoryBallotChains creates a new in-memory ballot chain store.
func NewInMemoryBallotChains(genesis string) *InMemoryBallotChains {
	if genesis == "" {
		genesis = GenesisHash
	}
	return &InMemoryBallotChains{
		genesis: genesis,
		chains:  make(map[string][]*BallotRecord),
	}
}

// RecordBallot appends a ballot to the election's chain.
func (s *InMemoryBallotChains) RecordBallot(ctx context.Context, electionID string, payload map[string]any) (*BallotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[electionID]
	prevHash := s.genesis
	var serial int64 = 1
	if n := len(chain); n > 0 {
		prevHash = chain[n-1].BallotHash
		serial = chain[n-1].SerialID + 1
	}

	record := &BallotRecord{
		ElectionID:     electionID,
		SerialID:       serial,
		CastAt:         time.Now().UTC().Truncate(time.Microsecond),
		Payload:        payload,
		PrevBallotHash: prevHash,
	}

	hash, err := ComputeBallotHash(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	record.BallotHash = hash
	s.chains[electionID] = append(chain, record)

	copied := *record
	return &copied, nil
}

// Elections lists all election ids with ballots, sorted for determinism.
func (s *InMemoryBallotChains) Elections(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ChainFor returns the ballot chain of one election in serial order.
func (s *InMemoryBallotChains) ChainFor(ctx context.Context, electionID string) ([]*BallotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[electionID]
	results := make([]*BallotRecord, 0, len(chain))
	for _, r := range chain {
		copied := *r
		results = append(results, &copied)
	}
	return results, nil
}

// tamperBallot mutates a stored ballot record. Test-only, like Chain.tamper.
func (s *InMemoryBallotChains) tamperBallot(electionID string, serial int64, mutate func(*BallotRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.chains[electionID] {
		if r.SerialID == serial {
			mutate(r)
			return
		}
	}
}
