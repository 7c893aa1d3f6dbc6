// Package election defines the election model the counting core operates on
// and the repository used to load election metadata.
package election

import (
	"errors"
	"fmt"
	"time"
)

// ElectionType classifies how an election is decided.
type ElectionType string

// Valid election types.
const (
	TypeMajorityVote               ElectionType = "majority_vote"
	TypeProportionalRepresentation ElectionType = "proportional_representation"
	TypeReferendum                 ElectionType = "referendum"
)

// MajorityType selects the referendum acceptance threshold.
type MajorityType string

// Valid majority types for referendums.
const (
	MajoritySimple   MajorityType = "simple"
	MajorityAbsolute MajorityType = "absolute"
)

// Status represents the lifecycle state of an election.
type Status string

// Valid election statuses. Counting requires StatusClosed.
const (
	StatusDraft  Status = "draft"
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

var (
	// ErrNotFound is returned when the requested election does not exist.
	ErrNotFound = errors.New("election not found")
	// ErrInvalidType is returned for an unknown election type.
	ErrInvalidType = errors.New("invalid election type")
	// ErrMethodMismatch is returned when the counting method does not fit the election type.
	ErrMethodMismatch = errors.New("counting method does not match election type")
)

// Election is the counting core's read-only view of an election.
// CountingMethod is kept as a raw string here and decoded by the
// algorithm registry so the closed method set lives in one place.
type Election struct {
	ID             string
	Title          string
	ElectionType   ElectionType
	CountingMethod string
	SeatsToFill    int
	Quorum         int          // referendum only
	MajorityType   MajorityType // referendum only, defaults to simple
	Status         Status
	CreatedAt      time.Time
}

// ValidateType checks that the election type is one of the closed set.
func (e *Election) ValidateType() error {
	switch e.ElectionType {
	case TypeMajorityVote, TypeProportionalRepresentation, TypeReferendum:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, e.ElectionType)
	}
}

// IsClosed reports whether the election is in a countable state.
func (e *Election) IsClosed() bool {
	return e.Status == StatusClosed
}
