package election_test

import (
	"context"
	"errors"
	"testing"

	"github.com/uniwahl/zaehlwerk/internal/election"
	"github.com/uniwahl/zaehlwerk/internal/testdb"
)

func TestPostgresRepository_Get(t *testing.T) {
	conn := testdb.New(t)
	ctx := context.Background()
	repo := election.NewPostgresRepository(conn)

	_, err := conn.ExecContext(ctx, `
		INSERT INTO elections (id, title, election_type, counting_method, seats_to_fill, quorum, majority_type, status)
		VALUES ('urab-2026', 'Urabstimmung Semesterticket', 'referendum', 'yes_no_referendum', 1, 500, 'absolute', 'closed')
	`)
	if err != nil {
		t.Fatalf("failed to seed election: %v", err)
	}

	e, err := repo.Get(ctx, "urab-2026")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Title != "Urabstimmung Semesterticket" {
		t.Errorf("Title = %q", e.Title)
	}
	if e.ElectionType != election.TypeReferendum {
		t.Errorf("ElectionType = %q, want referendum", e.ElectionType)
	}
	if e.CountingMethod != "yes_no_referendum" {
		t.Errorf("CountingMethod = %q", e.CountingMethod)
	}
	if e.Quorum != 500 {
		t.Errorf("Quorum = %d, want 500", e.Quorum)
	}
	if e.MajorityType != election.MajorityAbsolute {
		t.Errorf("MajorityType = %q, want absolute", e.MajorityType)
	}
	if !e.IsClosed() {
		t.Error("IsClosed() = false for closed election")
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

// NULL quorum and majority_type map to the zero quorum and the simple
// majority default.
func TestPostgresRepository_GetDefaults(t *testing.T) {
	conn := testdb.New(t)
	ctx := context.Background()
	repo := election.NewPostgresRepository(conn)

	_, err := conn.ExecContext(ctx, `
		INSERT INTO elections (id, title, election_type, counting_method, seats_to_fill, status)
		VALUES ('sp-2026', 'Studierendenparlament', 'proportional_representation', 'sainte_lague', 25, 'open')
	`)
	if err != nil {
		t.Fatalf("failed to seed election: %v", err)
	}

	e, err := repo.Get(ctx, "sp-2026")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Quorum != 0 {
		t.Errorf("Quorum = %d, want 0", e.Quorum)
	}
	if e.MajorityType != election.MajoritySimple {
		t.Errorf("MajorityType = %q, want simple", e.MajorityType)
	}
	if e.SeatsToFill != 25 {
		t.Errorf("SeatsToFill = %d, want 25", e.SeatsToFill)
	}
	if e.IsClosed() {
		t.Error("IsClosed() = true for open election")
	}
}

func TestPostgresRepository_GetNotFound(t *testing.T) {
	conn := testdb.New(t)
	repo := election.NewPostgresRepository(conn)

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, election.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}
