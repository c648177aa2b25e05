package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	sqlitestore "github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// CreateEntity: slot allocation
// ═══════════════════════════════════════════════════════════════════════════

func TestEntityStore_CreateEntity_SlotsSharedAcrossKinds(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEntityStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	s1 := mustCreate(t, es, types.EntityStudent, "ada@example.edu")
	p1 := mustCreate(t, es, types.EntityProfessor, "grace@example.edu")
	s2 := mustCreate(t, es, types.EntityStudent, "alan@example.edu")

	if s1.ID != 1 || p1.ID != 2 || s2.ID != 3 {
		t.Fatalf("expected ids 1,2,3 got %d,%d,%d", s1.ID, p1.ID, s2.ID)
	}

	// A freed slot is reused by the next create of either kind.
	if ok, err := es.DeleteEntity(ctx, types.EntityProfessor, p1.ID); err != nil || !ok {
		t.Fatalf("DeleteEntity: ok=%v err=%v", ok, err)
	}
	s3 := mustCreate(t, es, types.EntityStudent, "edsger@example.edu")
	if s3.ID != 2 {
		t.Errorf("expected freed slot 2 to be reused, got %d", s3.ID)
	}
}

func TestEntityStore_CreateEntity_NoFreeSlot(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEntityStore(conn, newTestWriter(t, conn))

	nowMs := time.Now().UTC().UnixMilli()
	for id := store.MinSlot; id <= store.MaxSlot; id++ {
		if _, err := conn.Exec(`
INSERT INTO professors(id, first_name, email, created_at_ms, updated_at_ms)
VALUES (?, 'p', ?, ?, ?);`, id, fmt.Sprintf("p%d@example.edu", id), nowMs, nowMs); err != nil {
			t.Fatalf("seed professor %d: %v", id, err)
		}
	}

	_, err := es.CreateEntity(context.Background(), types.EntityStudent, store.EntityRecord{
		FirstName: "Late", Email: "late@example.edu",
	})
	if !errors.Is(err, store.ErrNoFreeSlot) {
		t.Fatalf("expected ErrNoFreeSlot, got %v", err)
	}
}

func TestEntityStore_CreateEntity_DuplicateEmail(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEntityStore(conn, newTestWriter(t, conn))

	mustCreate(t, es, types.EntityStudent, "ada@example.edu")

	_, err := es.CreateEntity(context.Background(), types.EntityStudent, store.EntityRecord{
		FirstName: "Other", Email: "ADA@example.edu",
	})
	if !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	// Same address is allowed in the other table.
	mustCreate(t, es, types.EntityProfessor, "ada@example.edu")
}

// ═══════════════════════════════════════════════════════════════════════════
// FindEntity / SetEnrolled
// ═══════════════════════════════════════════════════════════════════════════

func TestEntityStore_FindEntity_RoundTrip(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEntityStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	created, err := es.CreateEntity(ctx, types.EntityProfessor, store.EntityRecord{
		FirstName:   "Grace",
		LastName:    "Hopper",
		Email:       "grace@example.edu",
		Affiliation: "Computer Science",
		Number:      "E-100",
		CreatedAt:   time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	got, ok, err := es.FindEntity(ctx, types.EntityProfessor, created.ID)
	if err != nil || !ok {
		t.Fatalf("FindEntity: ok=%v err=%v", ok, err)
	}
	if got.LastName != "Hopper" || got.Affiliation != "Computer Science" || got.Number != "E-100" {
		t.Errorf("unexpected entity %+v", got)
	}
	if got.FingerprintEnrolled {
		t.Error("new entity should not be enrolled")
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at mismatch: %v vs %v", got.CreatedAt, created.CreatedAt)
	}

	// Kind is part of the key.
	if _, ok, _ := es.FindEntity(ctx, types.EntityStudent, created.ID); ok {
		t.Error("professor id should not resolve as a student")
	}
}

func TestEntityStore_SetEnrolled(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEntityStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	e := mustCreate(t, es, types.EntityStudent, "ada@example.edu")
	if err := es.SetEnrolled(ctx, types.EntityStudent, e.ID, true); err != nil {
		t.Fatalf("SetEnrolled: %v", err)
	}
	got, _, _ := es.FindEntity(ctx, types.EntityStudent, e.ID)
	if !got.FingerprintEnrolled {
		t.Error("expected fingerprint_enrolled=1")
	}

	if err := es.SetEnrolled(ctx, types.EntityStudent, 99, true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing entity, got %v", err)
	}
}

func TestEntityStore_UnknownKind(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEntityStore(conn, newTestWriter(t, conn))

	if _, _, err := es.FindEntity(context.Background(), types.EntityType("janitor"), 1); err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}

func TestEntityStore_ListEntities_NewestFirst(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEntityStore(conn, newTestWriter(t, conn))

	mustCreate(t, es, types.EntityStudent, "a@example.edu")
	mustCreate(t, es, types.EntityProfessor, "b@example.edu")
	mustCreate(t, es, types.EntityStudent, "c@example.edu")

	got, err := es.ListEntities(context.Background(), types.EntityStudent)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(got) != 2 || got[0].Email != "c@example.edu" || got[1].Email != "a@example.edu" {
		t.Errorf("unexpected list %+v", got)
	}
}

// ── Test helpers ─────────────────────────────────────────────────────────────

func mustCreate(t *testing.T, es *sqlitestore.EntityStore, kind types.EntityType, email string) types.Entity {
	t.Helper()
	e, err := es.CreateEntity(context.Background(), kind, store.EntityRecord{
		FirstName: "Test",
		Email:     email,
	})
	if err != nil {
		t.Fatalf("CreateEntity(%s, %s): %v", kind, email, err)
	}
	return e
}
