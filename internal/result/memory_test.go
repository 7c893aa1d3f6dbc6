package result

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/uniwahl/zaehlwerk/internal/audit"
	"github.com/uniwahl/zaehlwerk/internal/election"
)

// failingChain rejects every append. Used to prove the result write and its
// audit entry commit or roll back together.
type failingChain struct {
	audit.Chain
}

func (c *failingChain) Append(ctx context.Context, entry audit.NewEntry) (*audit.Entry, error) {
	return nil, audit.ErrAppendFailed
}

func countEntry(version int) audit.NewEntry {
	return audit.NewEntry{
		ActionType: audit.ActionCountingPerformed,
		Level:      audit.LevelInfo,
		ActorID:    "wahlleitung",
		Details:    map[string]any{"election_id": "e1", "version": version},
	}
}

func testRecord(electionID string) *Record {
	return &Record{
		ElectionID:   electionID,
		Algorithm:    "sainte_lague",
		TiesDetected: false,
		Data:         json.RawMessage(`{"algorithm":"sainte_lague","total_votes":11000}`),
	}
}

func TestInMemoryStore_Tallies(t *testing.T) {
	store := NewInMemoryStore(audit.NewInMemoryChain(""))
	ctx := context.Background()

	if _, err := store.AggregatedTallies(ctx, "e1"); !errors.Is(err, ErrNoTallies) {
		t.Errorf("expected ErrNoTallies, got %v", err)
	}

	tallies := []election.Tally{
		{ListNum: 1, Votes: 4567},
		{ListNum: 2, Votes: 3891},
	}
	store.SetTallies("e1", tallies)

	got, err := store.AggregatedTallies(ctx, "e1")
	if err != nil {
		t.Fatalf("AggregatedTallies failed: %v", err)
	}
	if !reflect.DeepEqual(got, tallies) {
		t.Errorf("got %v, want %v", got, tallies)
	}

	// The returned slice is a copy; callers cannot poison the store.
	got[0].Votes = 0
	again, err := store.AggregatedTallies(ctx, "e1")
	if err != nil {
		t.Fatalf("AggregatedTallies failed: %v", err)
	}
	if again[0].Votes != 4567 {
		t.Error("mutating the returned tallies must not affect the store")
	}
}

func TestInMemoryStore_RecordCountAssignsVersions(t *testing.T) {
	chain := audit.NewInMemoryChain("")
	store := NewInMemoryStore(chain)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		stored, err := store.RecordCount(ctx, testRecord("e1"), countEntry)
		if err != nil {
			t.Fatalf("RecordCount %d failed: %v", want, err)
		}
		if stored.Version != want {
			t.Errorf("expected version %d, got %d", want, stored.Version)
		}
		if stored.ResultID == "" {
			t.Error("expected a generated result id")
		}
		if stored.Finalized {
			t.Error("a fresh record must not be finalized")
		}
		if stored.CountedAt.IsZero() {
			t.Error("expected a counted_at timestamp")
		}
	}

	// Versions are independent per election.
	other, err := store.RecordCount(ctx, testRecord("e2"), countEntry)
	if err != nil {
		t.Fatalf("RecordCount for e2 failed: %v", err)
	}
	if other.Version != 1 {
		t.Errorf("expected version 1 for a fresh election, got %d", other.Version)
	}

	tip, _, _ := chain.Tip(ctx)
	if tip != 4 {
		t.Errorf("expected 4 audit entries, got %d", tip)
	}

	// The entryFor callback sees the allocated version.
	entries, err := chain.Range(ctx, 3, 3)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if v, ok := entries[0].Details["version"].(int); !ok || v != 3 {
		t.Errorf("expected version 3 in audit details, got %v", entries[0].Details["version"])
	}
}

func TestInMemoryStore_RecordCountRollsBackOnAuditFailure(t *testing.T) {
	store := NewInMemoryStore(&failingChain{})
	ctx := context.Background()

	if _, err := store.RecordCount(ctx, testRecord("e1"), countEntry); !errors.Is(err, audit.ErrAppendFailed) {
		t.Fatalf("expected ErrAppendFailed, got %v", err)
	}

	// The failed write left nothing behind; the next version is still 1.
	if v, _ := store.LatestVersion(ctx, "e1"); v != 0 {
		t.Errorf("expected no stored versions after rollback, got %d", v)
	}
	if _, err := store.GetResult(ctx, "e1", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after rollback, got %v", err)
	}
}

func TestInMemoryStore_Finalize(t *testing.T) {
	chain := audit.NewInMemoryChain("")
	store := NewInMemoryStore(chain)
	ctx := context.Background()

	if _, err := store.RecordCount(ctx, testRecord("e1"), countEntry); err != nil {
		t.Fatalf("RecordCount failed: %v", err)
	}

	entry := audit.NewEntry{ActionType: audit.ActionCountingFinalized, Level: audit.LevelInfo}
	if err := store.Finalize(ctx, "e1", 1, entry); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	rec, err := store.GetResult(ctx, "e1", 1)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if !rec.Finalized {
		t.Error("expected the record to be finalized")
	}

	if err := store.Finalize(ctx, "e1", 1, entry); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("expected ErrAlreadyFinalized, got %v", err)
	}
	if err := store.Finalize(ctx, "e1", 9, entry); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown version, got %v", err)
	}
	if err := store.Finalize(ctx, "missing", 1, entry); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown election, got %v", err)
	}
}

func TestInMemoryStore_FinalizeRollsBackOnAuditFailure(t *testing.T) {
	chain := audit.NewInMemoryChain("")
	store := NewInMemoryStore(chain)
	ctx := context.Background()

	if _, err := store.RecordCount(ctx, testRecord("e1"), countEntry); err != nil {
		t.Fatalf("RecordCount failed: %v", err)
	}

	// Swap in a failing chain for the finalize append only.
	store.chain = &failingChain{}
	entry := audit.NewEntry{ActionType: audit.ActionCountingFinalized, Level: audit.LevelInfo}
	if err := store.Finalize(ctx, "e1", 1, entry); !errors.Is(err, audit.ErrAppendFailed) {
		t.Fatalf("expected ErrAppendFailed, got %v", err)
	}

	rec, err := store.GetResult(ctx, "e1", 1)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if rec.Finalized {
		t.Error("a failed finalize must not leave the record finalized")
	}
}

func TestInMemoryStore_GetResult(t *testing.T) {
	store := NewInMemoryStore(audit.NewInMemoryChain(""))
	ctx := context.Background()

	if _, err := store.GetResult(ctx, "e1", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for an empty store, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.RecordCount(ctx, testRecord("e1"), countEntry); err != nil {
			t.Fatalf("RecordCount %d failed: %v", i+1, err)
		}
	}

	latest, err := store.GetResult(ctx, "e1", 0)
	if err != nil {
		t.Fatalf("GetResult latest failed: %v", err)
	}
	if latest.Version != 3 {
		t.Errorf("expected latest version 3, got %d", latest.Version)
	}

	second, err := store.GetResult(ctx, "e1", 2)
	if err != nil {
		t.Fatalf("GetResult v2 failed: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Version)
	}

	if _, err := store.GetResult(ctx, "e1", 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown version, got %v", err)
	}

	if v, err := store.LatestVersion(ctx, "e1"); err != nil || v != 3 {
		t.Errorf("expected latest version 3, got %d (%v)", v, err)
	}
	if v, err := store.LatestVersion(ctx, "unknown"); err != nil || v != 0 {
		t.Errorf("expected latest version 0 for an unknown election, got %d (%v)", v, err)
	}
}
