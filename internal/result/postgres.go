package result

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/uniwahl/zaehlwerk/internal/audit"
	"github.com/uniwahl/zaehlwerk/internal/election"
)

// PostgresStore implements Store using PostgreSQL. The per-election counting
// lock is a transaction-scoped advisory lock, so it is released on commit or
// rollback even if the process dies mid-count.
type PostgresStore struct {
	db     *sql.DB
	chain  *audit.PostgresChain
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore writing audit entries through
// the given chain.
func NewPostgresStore(db *sql.DB, chain *audit.PostgresChain, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, chain: chain, logger: logger}
}

// AggregatedTallies returns the aggregate per-option totals for an election.
func (s *PostgresStore) AggregatedTallies(ctx context.Context, electionID string) ([]election.Tally, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT listnum, firstname, lastname, votes
		FROM tallies
		WHERE election_id = $1
		ORDER BY listnum ASC
	`, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tallies: %w", err)
	}
	defer rows.Close()

	var tallies []election.Tally
	for rows.Next() {
		var t election.Tally
		if err := rows.Scan(&t.ListNum, &t.FirstName, &t.LastName, &t.Votes); err != nil {
			return nil, fmt.Errorf("failed to scan tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tallies: %w", err)
	}
	if len(tallies) == 0 {
		return nil, ErrNoTallies
	}
	return tallies, nil
}

// RecordCount stores the next result version and its audit entry in one
// transaction.
func (s *PostgresStore) RecordCount(ctx context.Context, rec *Record, entryFor func(version int) audit.NewEntry) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warn("failed to rollback counting transaction",
				slog.String("error", err.Error()))
		}
	}()

	// Per-election advisory lock for the duration of the transaction.
	// A second counter on the same election gets Busy instead of blocking.
	var acquired bool
	err = tx.QueryRowContext(ctx,
		`SELECT pg_try_advisory_xact_lock(hashtext('count:' || $1::text))`,
		rec.ElectionID).Scan(&acquired)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire counting lock: %w", err)
	}
	if !acquired {
		return nil, ErrBusy
	}

	var maxVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM counting_results WHERE election_id = $1
	`, rec.ElectionID).Scan(&maxVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest version: %w", err)
	}

	stored := *rec
	stored.ResultID = uuid.New().String()
	stored.Version = maxVersion + 1
	stored.Finalized = false
	if stored.CountedAt.IsZero() {
		stored.CountedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO counting_results (result_id, election_id, version, algorithm, counted_at, finalized, ties_detected, result_data)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
	`, stored.ResultID, stored.ElectionID, stored.Version, stored.Algorithm,
		stored.CountedAt, stored.TiesDetected, []byte(stored.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to insert counting result: %w", err)
	}

	if _, err := s.chain.AppendTx(ctx, tx, entryFor(stored.Version)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit counting result: %w", err)
	}
	return &stored, nil
}

// Finalize marks a version as final exactly once, with its audit entry in
// the same transaction.
func (s *PostgresStore) Finalize(ctx context.Context, electionID string, version int, entry audit.NewEntry) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warn("failed to rollback finalize transaction",
				slog.String("error", err.Error()))
		}
	}()

	var finalized bool
	err = tx.QueryRowContext(ctx, `
		SELECT finalized FROM counting_results
		WHERE election_id = $1 AND version = $2
		FOR UPDATE
	`, electionID, version).Scan(&finalized)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read result for finalize: %w", err)
	}
	if finalized {
		return ErrAlreadyFinalized
	}

	// The WHERE clause repeats the guard so a finalized row can never be
	// touched even outside this code path.
	res, err := tx.ExecContext(ctx, `
		UPDATE counting_results SET finalized = TRUE
		WHERE election_id = $1 AND version = $2 AND finalized = FALSE
	`, electionID, version)
	if err != nil {
		return fmt.Errorf("failed to finalize result: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check finalize effect: %w", err)
	} else if n != 1 {
		return ErrAlreadyFinalized
	}

	if _, err := s.chain.AppendTx(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit finalize: %w", err)
	}
	return nil
}

// GetResult returns the stored result for a version (<= 0 means latest).
func (s *PostgresStore) GetResult(ctx context.Context, electionID string, version int) (*Record, error) {
	query := `
		SELECT result_id, election_id, version, algorithm, counted_at, finalized, ties_detected, result_data
		FROM counting_results
		WHERE election_id = $1
	`
	var row *sql.Row
	if version > 0 {
		row = s.db.QueryRowContext(ctx, query+` AND version = $2`, electionID, version)
	} else {
		row = s.db.QueryRowContext(ctx, query+` ORDER BY version DESC LIMIT 1`, electionID)
	}

	var rec Record
	var data []byte
	err := row.Scan(&rec.ResultID, &rec.ElectionID, &rec.Version, &rec.Algorithm,
		&rec.CountedAt, &rec.Finalized, &rec.TiesDetected, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query counting result: %w", err)
	}
	rec.CountedAt = rec.CountedAt.UTC()
	rec.Data = data
	return &rec, nil
}

// LatestVersion returns the highest stored version, 0 when none exist.
func (s *PostgresStore) LatestVersion(ctx context.Context, electionID string) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM counting_results WHERE election_id = $1
	`, electionID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest version: %w", err)
	}
	return version, nil
}
