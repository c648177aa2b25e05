package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/fingerprint"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/service"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

type captureCall struct {
	kind    string
	id      int
	retries int
}

type fakeCapturer struct {
	calls     []captureCall
	res       fingerprint.Result
	err       error
	onCapture func()
}

func (f *fakeCapturer) Capture(kind string, id, maxRetries int, _ time.Duration) (fingerprint.Result, error) {
	if f.onCapture != nil {
		f.onCapture()
	}
	f.calls = append(f.calls, captureCall{kind, id, maxRetries})
	return f.res, f.err
}

func newTestEnrollment(c *fakeCapturer) (*service.EnrollmentService, *memory.EntityStore) {
	es := memory.NewEntityStore()
	return service.NewEnrollmentService(es, c, service.EnrollmentOptions{Logger: zerolog.Nop()}), es
}

func TestRegister_CaptureSuccess_Enrolled(t *testing.T) {
	c := &fakeCapturer{res: fingerprint.Result{OK: true, Message: "Enroll success on attempt 1", Attempts: 1}}
	svc, es := newTestEnrollment(c)

	e, err := svc.Register(context.Background(), "student", types.NewEntity{
		FirstName: "  Ada ",
		LastName:  "Lovelace",
		Email:     " Ada@Example.EDU ",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !e.FingerprintEnrolled {
		t.Error("expected returned entity to be enrolled")
	}
	if e.FirstName != "Ada" || e.Email != "ada@example.edu" {
		t.Errorf("expected conformed fields, got %q %q", e.FirstName, e.Email)
	}

	if len(c.calls) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(c.calls))
	}
	if c.calls[0].id != e.ID || c.calls[0].kind != "student" {
		t.Errorf("capture targeted %+v, entity id %d", c.calls[0], e.ID)
	}
	if c.calls[0].retries != fingerprint.DefaultEnrollRetries {
		t.Errorf("expected default retries %d, got %d", fingerprint.DefaultEnrollRetries, c.calls[0].retries)
	}

	stored, ok, _ := es.FindEntity(context.Background(), types.EntityStudent, e.ID)
	if !ok || !stored.FingerprintEnrolled {
		t.Error("expected stored entity to be enrolled")
	}
}

func TestRegister_CaptureFailure_RemovesEntity(t *testing.T) {
	c := &fakeCapturer{
		res: fingerprint.Result{Message: "Enroll failed after 2 attempts (ENREGISTREMENT: ECHEC)"},
		err: fingerprint.ErrEnrollFailed,
	}
	svc, es := newTestEnrollment(c)

	_, err := svc.Register(context.Background(), "professor", types.NewEntity{
		FirstName:          "Grace",
		Email:              "grace@example.edu",
		FingerprintRetries: 2,
	})
	if !errors.Is(err, service.ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
	if c.calls[0].retries != 2 {
		t.Errorf("expected requested retries 2, got %d", c.calls[0].retries)
	}

	list, _ := es.ListEntities(context.Background(), types.EntityProfessor)
	if len(list) != 0 {
		t.Errorf("expected entity removed after failed capture, got %d", len(list))
	}
}

func TestRegister_InvalidInput_NoCapture(t *testing.T) {
	c := &fakeCapturer{res: fingerprint.Result{OK: true}}
	svc, _ := newTestEnrollment(c)

	cases := []types.NewEntity{
		{Email: "x@example.edu"},
		{FirstName: "X"},
		{FirstName: "X", Email: "not-an-email"},
		{FirstName: "X", Email: "x@example.edu", FingerprintRetries: 99},
	}
	for _, in := range cases {
		if _, err := svc.Register(context.Background(), "student", in); !errors.Is(err, service.ErrInvalidInput) {
			t.Errorf("Register(%+v): expected ErrInvalidInput, got %v", in, err)
		}
	}
	if _, err := svc.Register(context.Background(), "alien", types.NewEntity{FirstName: "X", Email: "x@example.edu"}); !errors.Is(err, service.ErrInvalidEntityType) {
		t.Errorf("expected ErrInvalidEntityType, got %v", err)
	}
	if len(c.calls) != 0 {
		t.Errorf("expected no capture for invalid input, got %d", len(c.calls))
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	c := &fakeCapturer{res: fingerprint.Result{OK: true}}
	svc, _ := newTestEnrollment(c)
	ctx := context.Background()

	in := types.NewEntity{FirstName: "Ada", Email: "ada@example.edu"}
	if _, err := svc.Register(ctx, "student", in); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(ctx, "student", in); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if len(c.calls) != 1 {
		t.Errorf("expected only the first registration to capture, got %d", len(c.calls))
	}
}

func TestRegister_SlotsSharedAcrossKinds(t *testing.T) {
	c := &fakeCapturer{res: fingerprint.Result{OK: true}}
	svc, _ := newTestEnrollment(c)
	ctx := context.Background()

	s, _ := svc.Register(ctx, "student", types.NewEntity{FirstName: "A", Email: "a@example.edu"})
	p, _ := svc.Register(ctx, "professor", types.NewEntity{FirstName: "B", Email: "b@example.edu"})
	if s.ID == p.ID {
		t.Errorf("student and professor share slot %d", s.ID)
	}
}
