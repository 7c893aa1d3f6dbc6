package audit_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/uniwahl/zaehlwerk/internal/audit"
	"github.com/uniwahl/zaehlwerk/internal/testdb"
)

// The postgres tests live in an external test package because tampering
// hooks do not apply here; broken chains are produced with plain SQL.

// seedBallotElections inserts minimal election rows so ballot_log foreign
// keys resolve.
func seedBallotElections(t *testing.T, conn *sql.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := conn.ExecContext(context.Background(), `
			INSERT INTO elections (id, title, election_type, counting_method, seats_to_fill, status)
			VALUES ($1, $1, 'majority_vote', 'highest_votes_simple', 1, 'closed')
		`, id)
		if err != nil {
			t.Fatalf("failed to seed election %s: %v", id, err)
		}
	}
}

func TestPostgresChain_AppendLinksEntries(t *testing.T) {
	conn := testdb.New(t)
	ctx := context.Background()
	chain := audit.NewPostgresChain(conn, "", nil)

	first, err := chain.Append(ctx, audit.NewEntry{
		ActionType: audit.ActionCountingPerformed,
		Level:      audit.LevelInfo,
		ActorID:    "wahlleitung",
		ActorRole:  "admin",
		Details:    map[string]any{"election_id": "sp-2026", "version": 1},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if first.ID != 1 {
		t.Errorf("first entry ID = %d, want 1", first.ID)
	}
	if first.PrevHash != audit.GenesisHash {
		t.Errorf("first entry PrevHash = %q, want genesis", first.PrevHash)
	}

	second, err := chain.Append(ctx, audit.NewEntry{
		ActionType: audit.ActionCountingFinalized,
		Level:      audit.LevelInfo,
		ActorID:    "wahlleitung",
		ActorRole:  "admin",
		Details:    map[string]any{"election_id": "sp-2026", "version": 1},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if second.ID != 2 {
		t.Errorf("second entry ID = %d, want 2", second.ID)
	}
	if second.PrevHash != first.EntryHash {
		t.Errorf("second entry PrevHash = %q, want %q", second.PrevHash, first.EntryHash)
	}

	id, hash, err := chain.Tip(ctx)
	if err != nil {
		t.Fatalf("Tip() error = %v", err)
	}
	if id != 2 || hash != second.EntryHash {
		t.Errorf("Tip() = (%d, %q), want (2, %q)", id, hash, second.EntryHash)
	}
}

func TestPostgresChain_TipOfEmptyChain(t *testing.T) {
	conn := testdb.New(t)
	chain := audit.NewPostgresChain(conn, "", nil)

	id, hash, err := chain.Tip(context.Background())
	if err != nil {
		t.Fatalf("Tip() error = %v", err)
	}
	if id != 0 {
		t.Errorf("Tip() id = %d, want 0", id)
	}
	if hash != audit.GenesisHash {
		t.Errorf("Tip() hash = %q, want genesis", hash)
	}
}

func TestPostgresChain_RangeAndList(t *testing.T) {
	conn := testdb.New(t)
	ctx := context.Background()
	chain := audit.NewPostgresChain(conn, "", nil)

	for i := 0; i < 4; i++ {
		if _, err := chain.Append(ctx, audit.NewEntry{
			ActionType: audit.ActionCountingPerformed,
			Level:      audit.LevelInfo,
			ActorRole:  "admin",
			Details:    map[string]any{"run": i + 1},
		}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := chain.Range(ctx, 2, 3)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != 2 || entries[1].ID != 3 {
		t.Fatalf("Range(2, 3) returned ids %v, want [2 3]", entryIDs(entries))
	}

	if _, err := chain.Range(ctx, 0, 3); !errors.Is(err, audit.ErrInvalidRange) {
		t.Errorf("Range(0, 3) error = %v, want ErrInvalidRange", err)
	}

	newest, err := chain.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(newest) != 2 || newest[0].ID != 4 || newest[1].ID != 3 {
		t.Fatalf("List(2) returned ids %v, want [4 3]", entryIDs(newest))
	}

	all, err := chain.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("List(0) returned %d entries, want 4", len(all))
	}
}

func entryIDs(entries []*audit.Entry) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// Stored entries must verify after the JSONB round trip: numeric details come
// back as json.Number and have to hash identically to the values hashed at
// append time.
func TestPostgresChain_VerifiesAfterRoundTrip(t *testing.T) {
	conn := testdb.New(t)
	ctx := context.Background()
	chain := audit.NewPostgresChain(conn, "", nil)

	details := map[string]any{
		"election_id":   "sp-2026",
		"version":       3,
		"ties_detected": false,
		"note":          "Losentscheid nötig",
	}
	for i := 0; i < 3; i++ {
		if _, err := chain.Append(ctx, audit.NewEntry{
			ActionType: audit.ActionCountingPerformed,
			Level:      audit.LevelInfo,
			ActorID:    "wahlleitung",
			ActorRole:  "admin",
			Details:    details,
		}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	report, err := audit.VerifyRange(ctx, chain, "", 1, 3)
	if err != nil {
		t.Fatalf("VerifyRange() error = %v", err)
	}
	if !report.Valid {
		t.Errorf("VerifyRange() Valid = false, first break at %v", report.FirstBreak)
	}
	if report.Checked != 3 {
		t.Errorf("VerifyRange() Checked = %d, want 3", report.Checked)
	}
}

func TestPostgresBallotChains_PerElectionSerials(t *testing.T) {
	conn := testdb.New(t)
	ctx := context.Background()
	seedBallotElections(t, conn, "sp-2026", "fsr-physik")
	ballots := audit.NewPostgresBallotChains(conn, "", nil)

	for i := 0; i < 3; i++ {
		if _, err := ballots.RecordBallot(ctx, "sp-2026", map[string]any{"token": i}); err != nil {
			t.Fatalf("RecordBallot() error = %v", err)
		}
	}
	rec, err := ballots.RecordBallot(ctx, "fsr-physik", map[string]any{"token": 99})
	if err != nil {
		t.Fatalf("RecordBallot() error = %v", err)
	}
	if rec.SerialID != 1 {
		t.Errorf("first ballot of second election SerialID = %d, want 1", rec.SerialID)
	}
	if rec.PrevBallotHash != audit.GenesisHash {
		t.Errorf("first ballot PrevBallotHash = %q, want genesis", rec.PrevBallotHash)
	}

	ids, err := ballots.Elections(ctx)
	if err != nil {
		t.Fatalf("Elections() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "fsr-physik" || ids[1] != "sp-2026" {
		t.Errorf("Elections() = %v, want [fsr-physik sp-2026]", ids)
	}

	records, err := ballots.ChainFor(ctx, "sp-2026")
	if err != nil {
		t.Fatalf("ChainFor() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("ChainFor() returned %d records, want 3", len(records))
	}
	for i, r := range records {
		if r.SerialID != int64(i+1) {
			t.Errorf("record %d SerialID = %d, want %d", i, r.SerialID, i+1)
		}
	}
	if records[1].PrevBallotHash != records[0].BallotHash {
		t.Errorf("second ballot PrevBallotHash = %q, want %q",
			records[1].PrevBallotHash, records[0].BallotHash)
	}
}

func TestPostgresBallotChains_VerifyAfterRoundTrip(t *testing.T) {
	conn := testdb.New(t)
	ctx := context.Background()
	seedBallotElections(t, conn, "sp-2026", "fsr-physik")
	ballots := audit.NewPostgresBallotChains(conn, "", nil)

	for i := 0; i < 3; i++ {
		if _, err := ballots.RecordBallot(ctx, "sp-2026", map[string]any{"token": i}); err != nil {
			t.Fatalf("RecordBallot() error = %v", err)
		}
	}
	if _, err := ballots.RecordBallot(ctx, "fsr-physik", map[string]any{"token": 99}); err != nil {
		t.Fatalf("RecordBallot() error = %v", err)
	}

	report, err := audit.VerifyBallotChains(ctx, ballots, "")
	if err != nil {
		t.Fatalf("VerifyBallotChains() error = %v", err)
	}
	if !report.Valid {
		t.Fatalf("VerifyBallotChains() Valid = false, errors = %+v", report.Errors)
	}
	if report.TotalBallots != 4 {
		t.Errorf("TotalBallots = %d, want 4", report.TotalBallots)
	}
	if report.ElectionsChecked != 2 {
		t.Errorf("ElectionsChecked = %d, want 2", report.ElectionsChecked)
	}
}
