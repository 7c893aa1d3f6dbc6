package election

import (
	"fmt"
	"strings"
)

// Tally is one aggregated per-option vote count for an election, the only
// input the counting engines ever see (aggregate totals, never individual
// ballots). ListNum is unique within an election and serves as the stable
// deterministic tie-breaking key.
type Tally struct {
	ListNum   int    `json:"listnum"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Votes     int64  `json:"votes"`
}

// CandidateName returns the display name for a tally line.
func (t Tally) CandidateName() string {
	name := strings.TrimSpace(t.FirstName + " " + t.LastName)
	if name == "" {
		return fmt.Sprintf("Liste %d", t.ListNum)
	}
	return name
}
