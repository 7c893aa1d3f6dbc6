package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uniwahl/zaehlwerk/internal/canonical"
)

// hashFieldSeparator joins the hashed fields. It cannot occur inside the
// numeric, enum or hex fields, and the details field is canonical JSON where
// it is always escaped inside strings.
const hashFieldSeparator = "|"

// ComputeEntryHash derives the SHA-256 entry hash over all entry fields and
// the previous hash:
//
//	sha256(id | timestamp | action_type | level | actor_id | actor_role | canonical(details) | prev_hash)
//
// Timestamps enter as RFC3339Nano in UTC; storage must preserve them exactly
// (the repositories truncate to microseconds before hashing for that reason).
func ComputeEntryHash(e *Entry) (string, error) {
	details, err := canonical.Marshal(e.Details)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize details: %w", err)
	}

	payload := strings.Join([]string{
		strconv.FormatInt(e.ID, 10),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.ActionType),
		string(e.Level),
		e.ActorID,
		e.ActorRole,
		string(details),
		e.PrevHash,
	}, hashFieldSeparator)

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:]), nil
}

// ComputeBallotHash derives the SHA-256 hash of a ballot chain link using the
// same discipline as the audit chain.
func ComputeBallotHash(b *BallotRecord) (string, error) {
	payload, err := canonical.Marshal(b.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize ballot payload: %w", err)
	}

	joined := strings.Join([]string{
		b.ElectionID,
		strconv.FormatInt(b.SerialID, 10),
		b.CastAt.UTC().Format(time.RFC3339Nano),
		string(payload),
		b.PrevBallotHash,
	}, hashFieldSeparator)

	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:]), nil
}
