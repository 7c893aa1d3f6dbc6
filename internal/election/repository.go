package election

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Repository provides read access to election metadata.
type Repository interface {
	// Get returns the election with the given ID.
	// Returns ErrNotFound if no such election exists.
	Get(ctx context.Context, id string) (*Election, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu        sync.RWMutex
	elections map[string]*Election
}

// NewInMemoryRepository creates a new in-memory election repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		elections: make(map[string]*Election),
	}
}

// Put stores or replaces an election.
func (r *InMemoryRepository) Put(e *Election) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *e
	r.elections[e.ID] = &copied
}

// Get returns the election with the given ID.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Election, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.elections[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modification
	copied := *e
	return &copied, nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the election with the given ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Election, error) {
	query := `
		SELECT id, title, election_type, counting_method, seats_to_fill,
		       COALESCE(quorum, 0), COALESCE(majority_type, 'simple'), status, created_at
		FROM elections
		WHERE id = $1
	`

	var e Election
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Title, &e.ElectionType, &e.CountingMethod, &e.SeatsToFill,
		&e.Quorum, &e.MajorityType, &e.Status, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query election: %w", err)
	}

	return &e, nil
}
