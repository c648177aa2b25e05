package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/fingerprint"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/validate"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrCaptureFailed = errors.New("fingerprint capture failed")
)

// Capturer is the enrollment half of fingerprint.Driver.
type Capturer interface {
	Capture(kind string, id, maxRetries int, perTryTimeout time.Duration) (fingerprint.Result, error)
}

type EnrollmentOptions struct {
	Logger zerolog.Logger
	// CaptureTimeout bounds each enrollment attempt on the reader.
	CaptureTimeout time.Duration
	// DefaultRetries applies when a request does not set fingerprint_retries.
	DefaultRetries int
}

// EnrollmentService creates a student or professor and stores their finger
// in the slot matching the new id. A record only survives if capture
// succeeds.
type EnrollmentService struct {
	entities store.EntityStore
	capturer Capturer
	opt      EnrollmentOptions
	log      zerolog.Logger
}

func NewEnrollmentService(es store.EntityStore, c Capturer, opt EnrollmentOptions) *EnrollmentService {
	if opt.CaptureTimeout <= 0 {
		opt.CaptureTimeout = fingerprint.DefaultEnrollTimeout
	}
	if opt.DefaultRetries <= 0 {
		opt.DefaultRetries = fingerprint.DefaultEnrollRetries
	}
	return &EnrollmentService{
		entities: es,
		capturer: c,
		opt:      opt,
		log:      opt.Logger.With().Str("component", "enrollment").Logger(),
	}
}

func (s *EnrollmentService) Register(ctx context.Context, kind string, in types.NewEntity) (types.Entity, error) {
	k, ok := types.ParseEntityType(kind)
	if !ok {
		return types.Entity{}, ErrInvalidEntityType
	}
	if err := validate.Struct(&in); err != nil {
		return types.Entity{}, fmt.Errorf("%w: %s", ErrInvalidInput, validate.Message(err))
	}

	e, err := s.entities.CreateEntity(ctx, k, store.EntityRecord{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		Affiliation: in.Affiliation,
		Number:      in.Number,
	})
	if err != nil {
		return types.Entity{}, err
	}

	retries := in.FingerprintRetries
	if retries <= 0 {
		retries = s.opt.DefaultRetries
	}
	res, cerr := s.capturer.Capture(string(k), e.ID, retries, s.opt.CaptureTimeout)

	// The reader state has changed either way, so the row must follow it
	// even if the caller cancelled during capture.
	wctx, cancel := persistContext(ctx)
	defer cancel()

	if cerr != nil || !res.OK {
		if _, derr := s.entities.DeleteEntity(wctx, k, e.ID); derr != nil {
			s.log.Error().Err(derr).Int("id", e.ID).Msg("remove entity after failed capture")
		}
		s.log.Warn().Err(cerr).Str("entity_type", string(k)).Int("id", e.ID).
			Str("message", res.Message).Msg("enrollment rejected")
		return types.Entity{}, fmt.Errorf("%w: %s", ErrCaptureFailed, res.Message)
	}

	if err := s.entities.SetEnrolled(wctx, k, e.ID, true); err != nil {
		return types.Entity{}, err
	}
	e.FingerprintEnrolled = true

	s.log.Info().Str("entity_type", string(k)).Int("id", e.ID).
		Int("attempts", res.Attempts).Msg("entity enrolled")
	return e, nil
}
