package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Advisory lock key serializing audit chain appends. Ballot appends derive a
// per-election key from hashtext so elections do not contend with each other.
const auditChainLockKey = 815001

// PostgresChain implements Chain using PostgreSQL. Appends serialize on a
// transaction-scoped advisory lock so exactly one writer extends the tip.
type PostgresChain struct {
	db      *sql.DB
	genesis string
	logger  *slog.Logger
}

// NewPostgresChain creates a new PostgresChain. An empty genesis selects the
// all-zero default.
func NewPostgresChain(db *sql.DB, genesis string, logger *slog.Logger) *PostgresChain {
	if genesis == "" {
		genesis = GenesisHash
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresChain{db: db, genesis: genesis, logger: logger}
}

// Genesis returns the configured genesis hash.
func (c *PostgresChain) Genesis() string {
	return c.genesis
}

// Append links and commits a new entry within one transaction.
func (c *PostgresChain) Append(ctx context.Context, entry NewEntry) (*Entry, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", ErrAppendFailed, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			c.logger.Warn("failed to rollback audit transaction",
				slog.String("error", err.Error()))
		}
	}()

	e, err := appendEntryTx(ctx, tx, c.genesis, entry)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrAppendFailed, err)
	}
	return e, nil
}

// AppendTx appends an entry inside a caller-owned transaction. The result
// store uses this to put a result write and its audit entry in one atomic
// unit; the entry only becomes part of the chain when the caller commits.
func (c *PostgresChain) AppendTx(ctx context.Context, tx *sql.Tx, entry NewEntry) (*Entry, error) {
	return appendEntryTx(ctx, tx, c.genesis, entry)
}

// appendEntryTx appends an entry inside an existing transaction. The counting
// service uses this to put the result insert and the audit append in one
// atomic unit.
func appendEntryTx(ctx context.Context, tx *sql.Tx, genesis string, entry NewEntry) (*Entry, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, auditChainLockKey); err != nil {
		return nil, fmt.Errorf("%w: acquire chain lock: %v", ErrAppendFailed, err)
	}

	var tipID int64
	var tipHash string
	err := tx.QueryRowContext(ctx, `
		SELECT id, entry_hash FROM audit_log ORDER BY id DESC LIMIT 1
	`).Scan(&tipID, &tipHash)
	if errors.Is(err, sql.ErrNoRows) {
		tipID, tipHash = 0, genesis
	} else if err != nil {
		return nil, fmt.Errorf("%w: read chain tip: %v", ErrAppendFailed, err)
	}

	e := &Entry{
		ID:         tipID + 1,
		Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
		ActionType: entry.ActionType,
		Level:      entry.Level,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Details:    entry.Details,
		PrevHash:   tipHash,
	}
	hash, err := ComputeEntryHash(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	e.EntryHash = hash

	details, err := json.Marshal(e.Details)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal details: %v", ErrAppendFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, created_at, action_type, level, actor_id, actor_role, details, prev_hash, entry_hash)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
	`, e.ID, e.Timestamp, string(e.ActionType), string(e.Level), e.ActorID, e.ActorRole, details, e.PrevHash, e.EntryHash)
	if err != nil {
		return nil, fmt.Errorf("%w: insert entry: %v", ErrAppendFailed, err)
	}

	return e, nil
}

// Range returns entries with lo <= id <= hi in ascending order.
func (c *PostgresChain) Range(ctx context.Context, lo, hi int64) ([]*Entry, error) {
	if lo < 1 || hi < lo {
		return nil, ErrInvalidRange
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, created_at, action_type, level, COALESCE(actor_id, ''), actor_role, details, prev_hash, entry_hash
		FROM audit_log
		WHERE id BETWEEN $1 AND $2
		ORDER BY id ASC
	`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit range: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// List returns the newest entries first.
func (c *PostgresChain) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := `
		SELECT id, created_at, action_type, level, COALESCE(actor_id, ''), actor_role, details, prev_hash, entry_hash
		FROM audit_log
		ORDER BY id DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = c.db.QueryContext(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = c.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Tip returns the current chain head.
func (c *PostgresChain) Tip(ctx context.Context) (int64, string, error) {
	var id int64
	var hash string
	err := c.db.QueryRowContext(ctx, `
		SELECT id, entry_hash FROM audit_log ORDER BY id DESC LIMIT 1
	`).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, c.genesis, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to read chain tip: %w", err)
	}
	return id, hash, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var e Entry
		var details []byte
		var action, level string
		if err := rows.Scan(&e.ID, &e.Timestamp, &action, &level, &e.ActorID, &e.ActorRole, &details, &e.PrevHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.ActionType = ActionType(action)
		e.Level = Level(level)
		e.Timestamp = e.Timestamp.UTC()

		decoded, err := decodeDetails(details)
		if err != nil {
			return nil, fmt.Errorf("failed to decode details for entry %d: %w", e.ID, err)
		}
		e.Details = decoded
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}

// decodeDetails parses a stored details document preserving number precision
// (json.Number), so recomputed hashes match the ones computed at append time.
func decodeDetails(data []byte) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// PostgresBallotChains implements BallotChains using PostgreSQL.
type PostgresBallotChains struct {
	db      *sql.DB
	genesis string
	logger  *slog.Logger
}

// NewPostgresBallotChains creates a new PostgresBallotChains.
func NewPostgresBallotChains(db *sql.DB, genesis string, logger *slog.Logger) *PostgresBallotChains {
	if genesis == "" {
		genesis = GenesisHash
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBallotChains{db: db, genesis: genesis, logger: logger}
}

// RecordBallot appends a ballot to the election's chain.
func (s *PostgresBallotChains) RecordBallot(ctx context.Context, electionID string, payload map[string]any) (*BallotRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", ErrAppendFailed, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warn("failed to rollback ballot transaction",
				slog.String("error", err.Error()))
		}
	}()

	// Serialize per election only; different elections append in parallel.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('ballot:' || $1::text))`, electionID); err != nil {
		return nil, fmt.Errorf("%w: acquire ballot lock: %v", ErrAppendFailed, err)
	}

	var tipSerial int64
	var tipHash string
	err = tx.QueryRowContext(ctx, `
		SELECT serial_id, ballot_hash FROM ballot_log
		WHERE election_id = $1
		ORDER BY serial_id DESC LIMIT 1
	`, electionID).Scan(&tipSerial, &tipHash)
	if errors.Is(err, sql.ErrNoRows) {
		tipSerial, tipHash = 0, s.genesis
	} else if err != nil {
		return nil, fmt.Errorf("%w: read ballot tip: %v", ErrAppendFailed, err)
	}

	record := &BallotRecord{
		ElectionID:     electionID,
		SerialID:       tipSerial + 1,
		CastAt:         time.Now().UTC().Truncate(time.Microsecond),
		Payload:        payload,
		PrevBallotHash: tipHash,
	}
	hash, err := ComputeBallotHash(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	record.BallotHash = hash

	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrAppendFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ballot_log (election_id, serial_id, cast_at, payload, prev_ballot_hash, ballot_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ElectionID, record.SerialID, record.CastAt, payloadJSON, record.PrevBallotHash, record.BallotHash)
	if err != nil {
		return nil, fmt.Errorf("%w: insert ballot: %v", ErrAppendFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrAppendFailed, err)
	}
	return record, nil
}

// Elections lists all election ids with ballots.
func (s *PostgresBallotChains) Elections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT election_id FROM ballot_log ORDER BY election_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ballot elections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan election id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate election ids: %w", err)
	}
	return ids, nil
}

// ChainFor returns the ballot chain of one election in serial order.
func (s *PostgresBallotChains) ChainFor(ctx context.Context, electionID string) ([]*BallotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT election_id, serial_id, cast_at, payload, prev_ballot_hash, ballot_hash
		FROM ballot_log
		WHERE election_id = $1
		ORDER BY serial_id ASC
	`, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ballot chain: %w", err)
	}
	defer rows.Close()

	var records []*BallotRecord
	for rows.Next() {
		var r BallotRecord
		var payload []byte
		if err := rows.Scan(&r.ElectionID, &r.SerialID, &r.CastAt, &payload, &r.PrevBallotHash, &r.BallotHash); err != nil {
			return nil, fmt.Errorf("failed to scan ballot record: %w", err)
		}
		r.CastAt = r.CastAt.UTC()
		decoded, err := decodeDetails(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ballot payload: %w", err)
		}
		r.Payload = decoded
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ballot records: %w", err)
	}
	return records, nil
}
