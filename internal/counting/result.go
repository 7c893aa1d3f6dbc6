package counting

// Result is the sum type over the per-algorithm result shapes. Every result
// carries its algorithm identifier and whether a tie was detected; the
// concrete shape is serialized with the canonical encoder so that repeated
// counts over identical input are byte-identical.
type Result interface {
	// Method returns the algorithm that produced the result.
	Method() Method
	// TiesDetected reports whether any tie was flagged during counting.
	TiesDetected() bool
}

// ProportionalSeat is one line of a Sainte-Laguë allocation.
type ProportionalSeat struct {
	ListNum   int    `json:"listnum"`
	Candidate string `json:"candidate"`
	Votes     int64  `json:"votes"`
	Seats     int    `json:"seats"`
	IsTie     bool   `json:"is_tie"`
}

// CalculationStep documents one round of the divisor method.
type CalculationStep struct {
	Round     int     `json:"round"`
	ListNum   int     `json:"listnum"`
	Candidate string  `json:"candidate"`
	Quotient  float64 `json:"quotient"`
	Divisor   int     `json:"divisor"`
	SeatsNow  int     `json:"seats_now"`
}

// SainteLagueResult is the output of the Sainte-Laguë engine.
type SainteLagueResult struct {
	Algorithm        string             `json:"algorithm"`
	SeatsToFill      int                `json:"seats_to_fill"`
	TotalVotes       int64              `json:"total_votes"`
	Allocation       []ProportionalSeat `json:"allocation"`
	CalculationSteps []CalculationStep  `json:"calculation_steps"`
	Ties             bool               `json:"ties_detected"`
	TieInfo          []string           `json:"tie_info,omitempty"`
	TieCandidates    []int              `json:"tie_candidates,omitempty"`
}

func (r *SainteLagueResult) Method() Method     { return MethodSainteLague }
func (r *SainteLagueResult) TiesDetected() bool { return r.Ties }

// QuotaSeat is one line of a Hare-Niemeyer allocation.
type QuotaSeat struct {
	ListNum   int     `json:"listnum"`
	Candidate string  `json:"candidate"`
	Votes     int64   `json:"votes"`
	Quota     float64 `json:"quota"`
	Seats     int     `json:"seats"`
	Remainder float64 `json:"remainder"`
}

// HareNiemeyerResult is the output of the Hare-Niemeyer engine.
type HareNiemeyerResult struct {
	Algorithm     string      `json:"algorithm"`
	SeatsToFill   int         `json:"seats_to_fill"`
	TotalVotes    int64       `json:"total_votes"`
	Allocation    []QuotaSeat `json:"allocation"`
	Ties          bool        `json:"ties_detected"`
	TieInfo       []string    `json:"tie_info,omitempty"`
	TieCandidates []int       `json:"tie_candidates,omitempty"`
}

func (r *HareNiemeyerResult) Method() Method     { return MethodHareNiemeyer }
func (r *HareNiemeyerResult) TiesDetected() bool { return r.Ties }

// MajorityCandidate is one candidate line in a majority-vote result.
type MajorityCandidate struct {
	ListNum    int    `json:"listnum"`
	Candidate  string `json:"candidate"`
	Votes      int64  `json:"votes"`
	Percentage string `json:"percentage"`
	IsElected  bool   `json:"is_elected"`
	IsTie      bool   `json:"is_tie"`
}

// MajorityResult is the output of the majority-vote engine.
type MajorityResult struct {
	Algorithm                 string              `json:"algorithm"`
	SeatsToFill               int                 `json:"seats_to_fill"`
	SeatsAllocated            int                 `json:"seats_allocated"`
	Elected                   []MajorityCandidate `json:"elected"`
	AllCandidates             []MajorityCandidate `json:"all_candidates"`
	TotalVotes                int64               `json:"total_votes"`
	Ties                      bool                `json:"ties_detected"`
	TieCandidates             []int               `json:"tie_candidates"`
	ResolutionRequired        bool                `json:"resolution_required"`
	TieInfo                   string              `json:"tie_info,omitempty"`
	AbsoluteMajorityRequired  bool                `json:"absolute_majority_required"`
	AbsoluteMajorityAchieved  *bool               `json:"absolute_majority_achieved,omitempty"`
	AbsoluteMajorityThreshold *float64            `json:"absolute_majority_threshold,omitempty"`
	MajorityInfo              string              `json:"majority_info"`
	method                    Method
}

func (r *MajorityResult) Method() Method     { return r.method }
func (r *MajorityResult) TiesDetected() bool { return r.Ties }

// ReferendumBinaryResult is the output of the referendum engine in binary
// YES/NO/ABSTAIN mode.
type ReferendumBinaryResult struct {
	Algorithm         string `json:"algorithm"`
	Accepted          bool   `json:"accepted"`
	MajorityType      string `json:"majority_type"`
	Quorum            int    `json:"quorum"`
	QuorumReached     bool   `json:"quorum_reached"`
	Yes               int64  `json:"yes"`
	No                int64  `json:"no"`
	Abstain           int64  `json:"abstain"`
	Valid             int64  `json:"valid"`
	Turnout           int64  `json:"turnout"`
	YesPercentage     string `json:"yes_percentage"`
	NoPercentage      string `json:"no_percentage"`
	AbstainPercentage string `json:"abstain_percentage"`
	Info              string `json:"info,omitempty"`
	Ties              bool   `json:"ties_detected"`
}

func (r *ReferendumBinaryResult) Method() Method     { return MethodYesNoReferendum }
func (r *ReferendumBinaryResult) TiesDetected() bool { return false }

// PluralityOption is one option line in a plurality referendum result.
type PluralityOption struct {
	ListNum    int    `json:"listnum"`
	Candidate  string `json:"candidate"`
	Votes      int64  `json:"votes"`
	Percentage string `json:"percentage"`
}

// ReferendumPluralityResult is the output of the referendum engine when the
// option set is not the binary YES/NO/ABSTAIN triple.
type ReferendumPluralityResult struct {
	Algorithm      string            `json:"algorithm"`
	Mode           string            `json:"mode"`
	TotalVotes     int64             `json:"total_votes"`
	Quorum         int               `json:"quorum"`
	QuorumReached  bool              `json:"quorum_reached"`
	AllCandidates  []PluralityOption `json:"all_candidates"`
	Winner         *int              `json:"winner,omitempty"`
	WinnerName     string            `json:"winner_name,omitempty"`
	Ties           bool              `json:"ties_detected"`
	TiedCandidates []int             `json:"tied_candidates,omitempty"`
}

func (r *ReferendumPluralityResult) Method() Method     { return MethodYesNoReferendum }
func (r *ReferendumPluralityResult) TiesDetected() bool { return r.Ties }
