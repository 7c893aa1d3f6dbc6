package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Chain is the append-only audit log. Implementations must serialize on the
// chain tip so that concurrent appends commit exactly one entry at a time.
type Chain interface {
	// Append assigns the next id, links the entry to the current tip, computes
	// its hash and commits it. Errors here are CRITICAL for callers.
	Append(ctx context.Context, entry NewEntry) (*Entry, error)

	// Range returns entries with lo <= id <= hi in ascending id order.
	Range(ctx context.Context, lo, hi int64) ([]*Entry, error)

	// List returns the newest entries first, at most limit (0 = no limit).
	List(ctx context.Context, limit int) ([]*Entry, error)

	// Tip returns the current highest id and its entry hash. An empty chain
	// returns (0, genesis).
	Tip(ctx context.Context) (int64, string, error)
}

// InMemoryChain is an in-memory implementation of Chain.
// Used for testing and development. Thread-safe via Mutex.
type InMemoryChain struct {
	mu      sync.Mutex
	genesis string
	entries []*Entry
}

// NewInMemoryChain creates a new in-memory audit chain. An empty genesis
// selects the all-zero default.
func NewInMemoryChain(genesis string) *InMemoryChain {
	if genesis == "" {
		genesis = GenesisHash
	}
	return &InMemoryChain{genesis: genesis}
}

// Append links and commits a new entry.
func (c *InMemoryChain) Append(ctx context.Context, entry NewEntry) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := c.genesis
	var id int64 = 1
	if n := len(c.entries); n > 0 {
		prevHash = c.entries[n-1].EntryHash
		id = c.entries[n-1].ID + 1
	}

	e := &Entry{
		ID:         id,
		Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
		ActionType: entry.ActionType,
		Level:      entry.Level,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Details:    entry.Details,
		PrevHash:   prevHash,
	}

	hash, err := ComputeEntryHash(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	e.EntryHash = hash
	c.entries = append(c.entries, e)

	copied := *e
	return &copied, nil
}

// Range returns entries with lo <= id <= hi.
func (c *InMemoryChain) Range(ctx context.Context, lo, hi int64) ([]*Entry, error) {
	if lo < 1 || hi < lo {
		return nil, ErrInvalidRange
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var results []*Entry
	for _, e := range c.entries {
		if e.ID >= lo && e.ID <= hi {
			copied := *e
			results = append(results, &copied)
		}
	}
	return results, nil
}

// List returns the newest entries first.
func (c *InMemoryChain) List(ctx context.Context, limit int) ([]*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var results []*Entry
	for i := len(c.entries) - 1; i >= 0; i-- {
		copied := *c.entries[i]
		results = append(results, &copied)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Tip returns the current chain head.
func (c *InMemoryChain) Tip(ctx context.Context) (int64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.entries); n > 0 {
		return c.entries[n-1].ID, c.entries[n-1].EntryHash, nil
	}
	return 0, c.genesis, nil
}

// Genesis returns the configured genesis hash.
func (c *InMemoryChain) Genesis() string {
	return c.genesis
}

// tamper replaces a stored entry in place. Only reachable from tests in this
// package; the public surface is strictly append-only.
func (c *InMemoryChain) tamper(id int64, mutate func(*Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.ID == id {
			mutate(e)
			return
		}
	}
}
