// Package audit provides the tamper-evident audit log of the election core:
// an append-only, hash-chained sequence of counting and ballot events, plus
// the verifiers an administrator runs on demand.
package audit

import (
	"errors"
	"time"
)

// ActionType classifies an audit event.
type ActionType string

// Audited actions.
const (
	ActionCountingPerformed       ActionType = "COUNTING_PERFORMED"
	ActionCountingFinalized       ActionType = "COUNTING_FINALIZED"
	ActionBallotCast              ActionType = "BALLOT_CAST"
	ActionCommitteeViewCandidates ActionType = "COMMITTEE_VIEW_CANDIDATES"
	ActionAuditVerified           ActionType = "AUDIT_VERIFIED"
)

// Level is the severity of an audit event.
type Level string

// Audit levels.
const (
	LevelInfo     Level = "INFO"
	LevelWarn     Level = "WARN"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
	LevelFatal    Level = "FATAL"
)

// GenesisHash is the prev_hash of the first chain entry when no custom
// genesis value is configured: an all-zero SHA-256 digest in hex.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

var (
	// ErrAppendFailed is returned when an entry could not be committed to the
	// chain. Counting treats this as CRITICAL and rolls back the whole run.
	ErrAppendFailed = errors.New("failed to append audit entry")
	// ErrInvalidRange is returned by the range verifier for lo > hi or ids < 1.
	ErrInvalidRange = errors.New("invalid verification range")
)

// Entry is one link of the audit chain. EntryHash covers every other field
// including PrevHash, so any retroactive modification breaks the chain.
type Entry struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	ActionType ActionType     `json:"action_type"`
	Level      Level          `json:"level"`
	ActorID    string         `json:"actor_id,omitempty"`
	ActorRole  string         `json:"actor_role,omitempty"`
	Details    map[string]any `json:"details"`
	PrevHash   string         `json:"prev_hash"`
	EntryHash  string         `json:"entry_hash"`
}

// NewEntry is the caller-supplied part of an audit entry; id, timestamp and
// both hashes are assigned by the chain on append.
type NewEntry struct {
	ActionType ActionType
	Level      Level
	ActorID    string
	ActorRole  string
	Details    map[string]any
}

// BallotRecord is one link of a per-election ballot chain. The payload is the
// opaque ballot reference the casting subsystem hands over; the hash covers
// election, serial, timestamp, payload and the previous ballot hash.
type BallotRecord struct {
	ElectionID     string         `json:"election_id"`
	SerialID       int64          `json:"serial_id"`
	CastAt         time.Time      `json:"cast_at"`
	Payload        map[string]any `json:"payload"`
	PrevBallotHash string         `json:"prev_ballot_hash"`
	BallotHash     string         `json:"ballot_hash"`
}
