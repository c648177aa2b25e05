package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/db"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/fingerprint"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/service"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// Store writes after a hardware operation, with the caller gone
// ═══════════════════════════════════════════════════════════════════════════════

// openSQLiteStores returns sqlite-backed stores on a private in-memory
// database. Unlike the memory stores they honour ctx cancellation.
func openSQLiteStores(t *testing.T) (*sqlite.EntityStore, *sqlite.AccessLogStore) {
	t.Helper()

	conn, err := db.OpenInMemory(context.Background(), "svc_"+t.Name())
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	w := db.NewWorker(conn)
	t.Cleanup(func() {
		w.Close()
		conn.Close()
	})
	return sqlite.NewEntityStore(conn, w), sqlite.NewAccessLogStore(conn, w)
}

// ── VerifyAccess ─────────────────────────────────────────────────────────────

func TestVerifyAccess_CallerCancelledDuringVerify_StillAudited(t *testing.T) {
	entities, logs := openSQLiteStores(t)
	bg := context.Background()

	e, err := entities.CreateEntity(bg, types.EntityStudent, store.EntityRecord{FirstName: "Ada", Email: "ada@example.edu"})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if err := entities.SetEnrolled(bg, types.EntityStudent, e.ID, true); err != nil {
		t.Fatalf("SetEnrolled: %v", err)
	}

	ctx, cancel := context.WithCancel(bg)
	defer cancel()
	v := &fakeVerifier{
		res:      fingerprint.Result{OK: true, Message: "Verification success", MatchedID: intPtr(e.ID)},
		onVerify: cancel,
	}
	pub := &recordingPublisher{}
	svc := service.NewAccessService(service.NewEntityRegistry(entities), v, logs, pub, service.AccessOptions{
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return fixedNow },
	})

	d, err := svc.VerifyAccess(ctx, "student", e.ID, 1)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if !d.Granted {
		t.Fatalf("expected granted, got reason %q", d.Reason)
	}
	if d.Log.ID == 0 {
		t.Error("expected the decision to carry the persisted row id")
	}

	rows, err := logs.ListLogs(bg, store.LogFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(rows))
	}
	if rows[0].Status != types.StatusGranted || rows[0].EntityID != e.ID {
		t.Errorf("unexpected row %+v", rows[0])
	}
	if len(pub.msgs) != 1 {
		t.Errorf("expected 1 published event, got %d", len(pub.msgs))
	}
}

// ── Register ─────────────────────────────────────────────────────────────────

func TestRegister_CallerCancelledDuringFailedCapture_RowRemoved(t *testing.T) {
	entities, _ := openSQLiteStores(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &fakeCapturer{
		res:       fingerprint.Result{OK: false, Message: "Enroll failed after 1 attempts"},
		onCapture: cancel,
	}
	svc := service.NewEnrollmentService(entities, c, service.EnrollmentOptions{Logger: zerolog.Nop()})

	_, err := svc.Register(ctx, "student", types.NewEntity{FirstName: "Ada", Email: "ada@example.edu"})
	if !errors.Is(err, service.ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}

	list, err := entities.ListEntities(context.Background(), types.EntityStudent)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no record holding a slot, got %+v", list)
	}
}

func TestRegister_CallerCancelledDuringCapture_StillEnrolled(t *testing.T) {
	entities, _ := openSQLiteStores(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &fakeCapturer{
		res:       fingerprint.Result{OK: true, Message: "Enroll success on attempt 1", Attempts: 1},
		onCapture: cancel,
	}
	svc := service.NewEnrollmentService(entities, c, service.EnrollmentOptions{Logger: zerolog.Nop()})

	e, err := svc.Register(ctx, "professor", types.NewEntity{FirstName: "Grace", Email: "grace@example.edu"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !e.FingerprintEnrolled {
		t.Error("expected returned entity to be enrolled")
	}

	got, found, err := entities.FindEntity(context.Background(), types.EntityProfessor, e.ID)
	if err != nil || !found {
		t.Fatalf("FindEntity: found=%v err=%v", found, err)
	}
	if !got.FingerprintEnrolled {
		t.Error("expected stored row to be enrolled")
	}
}
