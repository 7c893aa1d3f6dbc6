package counting

import (
	"errors"
	"reflect"
	"testing"

	"github.com/uniwahl/zaehlwerk/internal/election"
)

func TestCountHareNiemeyer_ThreeLists(t *testing.T) {
	tallies := []election.Tally{
		{ListNum: 1, FirstName: "Liste", LastName: "A", Votes: 4567},
		{ListNum: 2, FirstName: "Liste", LastName: "B", Votes: 3891},
		{ListNum: 3, FirstName: "Liste", LastName: "C", Votes: 2542},
	}

	res, err := CountHareNiemeyer(tallies, 5)
	if err != nil {
		t.Fatalf("CountHareNiemeyer failed: %v", err)
	}

	if res.Algorithm != string(MethodHareNiemeyer) {
		t.Errorf("expected algorithm %q, got %q", MethodHareNiemeyer, res.Algorithm)
	}
	if res.TotalVotes != 11000 {
		t.Errorf("expected total votes 11000, got %d", res.TotalVotes)
	}
	if res.Ties {
		t.Errorf("expected no ties, got tie info %v", res.TieInfo)
	}

	wantSeats := map[int]int{1: 2, 2: 2, 3: 1}
	wantQuota := map[int]float64{1: 2.0759, 2: 1.7686, 3: 1.1555}
	wantRemainder := map[int]float64{1: 0.0759, 2: 0.7686, 3: 0.1555}
	for _, a := range res.Allocation {
		if a.Seats != wantSeats[a.ListNum] {
			t.Errorf("listnum %d: expected %d seats, got %d", a.ListNum, wantSeats[a.ListNum], a.Seats)
		}
		if a.Quota != wantQuota[a.ListNum] {
			t.Errorf("listnum %d: expected quota %v, got %v", a.ListNum, wantQuota[a.ListNum], a.Quota)
		}
		if a.Remainder != wantRemainder[a.ListNum] {
			t.Errorf("listnum %d: expected remainder %v, got %v", a.ListNum, wantRemainder[a.ListNum], a.Remainder)
		}
	}
}

func TestCountHareNiemeyer_MatchesSainteLagueOnClearInput(t *testing.T) {
	// Both proportional methods must agree on an input with no close calls.
	tallies := []election.Tally{
		{ListNum: 1, Votes: 4567},
		{ListNum: 2, Votes: 3891},
		{ListNum: 3, Votes: 2542},
	}

	hn, err := CountHareNiemeyer(tallies, 5)
	if err != nil {
		t.Fatalf("CountHareNiemeyer failed: %v", err)
	}
	sl, err := CountSainteLague(tallies, 5)
	if err != nil {
		t.Fatalf("CountSainteLague failed: %v", err)
	}

	hnSeats := map[int]int{}
	for _, a := range hn.Allocation {
		hnSeats[a.ListNum] = a.Seats
	}
	slSeats := map[int]int{}
	for _, a := range sl.Allocation {
		slSeats[a.ListNum] = a.Seats
	}
	if !reflect.DeepEqual(hnSeats, slSeats) {
		t.Errorf("methods disagree: hare_niemeyer %v, sainte_lague %v", hnSeats, slSeats)
	}
}

func TestCountHareNiemeyer_RemainderCutoffTie(t *testing.T) {
	// Equal votes, equal remainders: the last remainder seat is contested.
	tallies := []election.Tally{
		{ListNum: 1, Votes: 100},
		{ListNum: 2, Votes: 100},
	}

	res, err := CountHareNiemeyer(tallies, 5)
	if err != nil {
		t.Fatalf("CountHareNiemeyer failed: %v", err)
	}

	if !res.Ties {
		t.Fatal("expected ties to be detected")
	}
	if !reflect.DeepEqual(res.TieCandidates, []int{1, 2}) {
		t.Errorf("expected tie candidates [1 2], got %v", res.TieCandidates)
	}
	if len(res.TieInfo) == 0 {
		t.Error("expected tie info messages")
	}

	total := 0
	seatsByList := map[int]int{}
	for _, a := range res.Allocation {
		total += a.Seats
		seatsByList[a.ListNum] = a.Seats
	}
	if total != 5 {
		t.Errorf("expected 5 seats allocated, got %d", total)
	}
	// Remainder order falls back to listnum on a perfect tie.
	if seatsByList[1] != 3 || seatsByList[2] != 2 {
		t.Errorf("expected seats 3/2 favoring listnum 1, got %v", seatsByList)
	}
}

func TestCountHareNiemeyer_ExactQuotasNoRemainderSeats(t *testing.T) {
	// 600/300/100 over 10 seats: every quota is integral, nothing to distribute.
	tallies := []election.Tally{
		{ListNum: 1, Votes: 600},
		{ListNum: 2, Votes: 300},
		{ListNum: 3, Votes: 100},
	}

	res, err := CountHareNiemeyer(tallies, 10)
	if err != nil {
		t.Fatalf("CountHareNiemeyer failed: %v", err)
	}
	if res.Ties {
		t.Error("expected no ties for integral quotas")
	}
	wantSeats := map[int]int{1: 6, 2: 3, 3: 1}
	for _, a := range res.Allocation {
		if a.Seats != wantSeats[a.ListNum] {
			t.Errorf("listnum %d: expected %d seats, got %d", a.ListNum, wantSeats[a.ListNum], a.Seats)
		}
		if a.Remainder != 0 {
			t.Errorf("listnum %d: expected zero remainder, got %v", a.ListNum, a.Remainder)
		}
	}
}

func TestCountHareNiemeyer_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		tallies []election.Tally
		seats   int
	}{
		{
			name:    "zero seats",
			tallies: []election.Tally{{ListNum: 1, Votes: 10}},
			seats:   0,
		},
		{
			name:    "empty tallies",
			tallies: nil,
			seats:   3,
		},
		{
			name:    "negative votes",
			tallies: []election.Tally{{ListNum: 1, Votes: 5}, {ListNum: 2, Votes: -3}},
			seats:   3,
		},
		{
			name:    "zero total votes",
			tallies: []election.Tally{{ListNum: 1, Votes: 0}},
			seats:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CountHareNiemeyer(tt.tallies, tt.seats)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCountHareNiemeyer_Deterministic(t *testing.T) {
	tallies := []election.Tally{
		{ListNum: 1, Votes: 1234},
		{ListNum: 2, Votes: 987},
		{ListNum: 3, Votes: 456},
		{ListNum: 4, Votes: 123},
	}

	first, err := CountHareNiemeyer(tallies, 7)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := CountHareNiemeyer(tallies, 7)
		if err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different result", i)
		}
	}
}

func TestCountHareNiemeyer_CutoffTolerance(t *testing.T) {
	// Remainders 0.49993 and 0.50007 differ by 3/20001, inside the 1/1000
	// tolerance, so the last remainder seat is contested.
	near := []election.Tally{
		{ListNum: 1, Votes: 10000},
		{ListNum: 2, Votes: 10001},
	}
	res, err := CountHareNiemeyer(near, 3)
	if err != nil {
		t.Fatalf("CountHareNiemeyer failed: %v", err)
	}
	if !res.Ties {
		t.Fatal("expected near-equal remainders to be flagged as a tie")
	}
	if !reflect.DeepEqual(res.TieCandidates, []int{1, 2}) {
		t.Errorf("expected tie candidates [1 2], got %v", res.TieCandidates)
	}

	// The same gap scaled up, 3/2001, exceeds the tolerance: no tie.
	wide := []election.Tally{
		{ListNum: 1, Votes: 1000},
		{ListNum: 2, Votes: 1001},
	}
	res, err = CountHareNiemeyer(wide, 3)
	if err != nil {
		t.Fatalf("CountHareNiemeyer failed: %v", err)
	}
	if res.Ties {
		t.Errorf("expected no tie outside the tolerance, got %v", res.TieInfo)
	}
}
