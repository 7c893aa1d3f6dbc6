package result

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uniwahl/zaehlwerk/internal/audit"
	"github.com/uniwahl/zaehlwerk/internal/election"
)

// InMemoryStore is an in-memory implementation of Store backed by an
// in-memory audit chain. Used for testing and development.
type InMemoryStore struct {
	mu      sync.Mutex
	chain   audit.Chain
	tallies map[string][]election.Tally
	results map[string][]*Record

	// Per-election counting locks; TryLock failure maps to ErrBusy.
	locks sync.Map // electionID -> *sync.Mutex
}

// NewInMemoryStore creates a new in-memory result store writing audit
// entries to the given chain.
func NewInMemoryStore(chain audit.Chain) *InMemoryStore {
	return &InMemoryStore{
		chain:   chain,
		tallies: make(map[string][]election.Tally),
		results: make(map[string][]*Record),
	}
}

// SetTallies stores the aggregate tallies for an election.
func (s *InMemoryStore) SetTallies(electionID string, tallies []election.Tally) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]election.Tally, len(tallies))
	copy(copied, tallies)
	s.tallies[electionID] = copied
}

// AggregatedTallies returns the aggregate per-option totals for an election.
func (s *InMemoryStore) AggregatedTallies(ctx context.Context, electionID string) ([]election.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tallies, ok := s.tallies[electionID]
	if !ok || len(tallies) == 0 {
		return nil, ErrNoTallies
	}
	copied := make([]election.Tally, len(tallies))
	copy(copied, tallies)
	return copied, nil
}

func (s *InMemoryStore) electionLock(electionID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(electionID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// RecordCount stores the next result version and its audit entry atomically.
func (s *InMemoryStore) RecordCount(ctx context.Context, rec *Record, entryFor func(version int) audit.NewEntry) (*Record, error) {
	lock := s.electionLock(rec.ElectionID)
	if !lock.TryLock() {
		return nil, ErrBusy
	}
	defer lock.Unlock()

	s.mu.Lock()
	versions := s.results[rec.ElectionID]
	version := 1
	if n := len(versions); n > 0 {
		version = versions[n-1].Version + 1
	}

	stored := *rec
	stored.ResultID = uuid.New().String()
	stored.Version = version
	stored.Finalized = false
	if stored.CountedAt.IsZero() {
		stored.CountedAt = time.Now().UTC()
	}
	s.results[rec.ElectionID] = append(versions, &stored)
	s.mu.Unlock()

	// Audit append failure rolls the result back; the two writes are a unit.
	if _, err := s.chain.Append(ctx, entryFor(version)); err != nil {
		s.mu.Lock()
		rs := s.results[rec.ElectionID]
		s.results[rec.ElectionID] = rs[:len(rs)-1]
		s.mu.Unlock()
		return nil, err
	}

	copied := stored
	return &copied, nil
}

// Finalize marks a version as final exactly once.
func (s *InMemoryStore) Finalize(ctx context.Context, electionID string, version int, entry audit.NewEntry) error {
	s.mu.Lock()
	var target *Record
	for _, r := range s.results[electionID] {
		if r.Version == version {
			target = r
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	if target.Finalized {
		s.mu.Unlock()
		return ErrAlreadyFinalized
	}
	target.Finalized = true
	s.mu.Unlock()

	if _, err := s.chain.Append(ctx, entry); err != nil {
		s.mu.Lock()
		target.Finalized = false
		s.mu.Unlock()
		return err
	}
	return nil
}

// GetResult returns the stored result for a version (<= 0 means latest).
func (s *InMemoryStore) GetResult(ctx context.Context, electionID string, version int) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.results[electionID]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	if version <= 0 {
		copied := *versions[len(versions)-1]
		return &copied, nil
	}
	for _, r := range versions {
		if r.Version == version {
			copied := *r
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// LatestVersion returns the highest stored version, 0 when none exist.
func (s *InMemoryStore) LatestVersion(ctx context.Context, electionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.results[electionID]
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[len(versions)-1].Version, nil
}
