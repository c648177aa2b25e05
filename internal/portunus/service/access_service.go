package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/fingerprint"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

const (
	EventAccess = "access"

	DefaultMaxPolls = 10
	DefaultLogLimit = 100
	MaxLogLimit     = 500
)

// Denial reasons that never reach the reader.
const (
	ReasonNotFound    = "Entity not found"
	ReasonNotEnrolled = "Fingerprint not registered"
)

// PersistTimeout bounds store writes that follow a hardware operation.
const PersistTimeout = 5 * time.Second

// persistContext keeps ctx's values but not its cancellation, so writes
// that record what the reader already did survive a departed caller.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), PersistTimeout)
}

// Verifier is the verification half of fingerprint.Driver.
type Verifier interface {
	Verify(expectedID *int, perTryTimeout time.Duration, maxPolls int) (fingerprint.Result, error)
}

// Publisher is satisfied by events.Broker.
type Publisher interface {
	Publish(event string, payload any) (int, error)
}

type AccessOptions struct {
	Logger zerolog.Logger
	// PollTimeout bounds each read while waiting for a verification line.
	PollTimeout time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

type AccessService struct {
	registry  *EntityRegistry
	verifier  Verifier
	logStore  store.AccessLogStore
	publisher Publisher
	opt       AccessOptions
	log       zerolog.Logger
}

func NewAccessService(reg *EntityRegistry, v Verifier, ls store.AccessLogStore, pub Publisher, opt AccessOptions) *AccessService {
	if opt.PollTimeout <= 0 {
		opt.PollTimeout = fingerprint.DefaultVerifyTimeout
	}
	if opt.Now == nil {
		opt.Now = func() time.Time { return time.Now().UTC() }
	}
	return &AccessService{
		registry:  reg,
		verifier:  v,
		logStore:  ls,
		publisher: pub,
		opt:       opt,
		log:       opt.Logger.With().Str("component", "access").Logger(),
	}
}

// VerifyAccess checks a presented finger against the entity's slot.
// Missing and unenrolled entities are denied without touching the reader.
// Every decision is appended to the audit log and published; only invalid
// input returns an error before that.
func (s *AccessService) VerifyAccess(ctx context.Context, kind string, id, maxRetries int) (types.AccessDecision, error) {
	entity, found, err := s.registry.Find(ctx, kind, id)
	if err != nil {
		return types.AccessDecision{}, err
	}
	entityType, _ := types.ParseEntityType(kind)

	d := types.AccessDecision{
		EntityType: entityType,
		EntityID:   id,
	}

	switch {
	case !found:
		d.Reason = ReasonNotFound
	case !entity.FingerprintEnrolled:
		d.Reason = ReasonNotEnrolled
	default:
		if maxRetries <= 0 {
			maxRetries = DefaultMaxPolls
		}
		expected := id
		res, verr := s.verifier.Verify(&expected, s.opt.PollTimeout, maxRetries)
		d.Granted = res.OK && verr == nil
		d.Reason = res.Message
		d.MatchedID = res.MatchedID
		if verr != nil {
			s.log.Debug().Err(verr).Int("entity_id", id).Msg("verification failed")
		}
	}

	d.OK = d.Granted

	status := types.StatusDenied
	if d.Granted {
		status = types.StatusGranted
	}
	accessDecisionsTotal.WithLabelValues(string(entityType), string(status)).Inc()
	now := s.opt.Now()

	// The caller may have gone away during a long verify; the row is still owed.
	rctx, cancel := persistContext(ctx)
	defer cancel()
	d.Log = s.record(rctx, store.AccessLogRecord{
		EventID:    uuid.NewString(),
		EntityType: entityType,
		EntityID:   id,
		Status:     status,
		Reason:     d.Reason,
		CreatedAt:  now,
	})
	d.ServerTime = now.Format(time.RFC3339Nano)

	s.log.Info().
		Str("entity_type", string(entityType)).
		Int("entity_id", id).
		Str("status", string(status)).
		Str("reason", d.Reason).
		Msg("access decision")

	return d, nil
}

// record persists the decision and broadcasts it.  Audit write errors are
// not returned to the caller: the decision has already been made, and the
// live stream still gets the event.
func (s *AccessService) record(ctx context.Context, rec store.AccessLogRecord) types.AccessEvent {
	ev, err := s.logStore.AppendLog(ctx, rec)
	if err != nil {
		s.log.Error().Err(err).Str("event_id", rec.EventID).Msg("append access log")
		ev = types.AccessEvent{
			EventID:    rec.EventID,
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
			Status:     rec.Status,
			Reason:     rec.Reason,
			CreatedAt:  rec.CreatedAt,
		}
	}

	if _, err := s.publisher.Publish(EventAccess, ev); err != nil {
		s.log.Error().Err(err).Str("event_id", rec.EventID).Msg("publish access event")
	}
	return ev
}

// ListLogs returns audit rows newest first. Unknown periods fall back to
// "day"; unknown entity types are ignored.
func (s *AccessService) ListLogs(ctx context.Context, q types.LogQuery) (types.LogPage, error) {
	f := store.LogFilter{
		Since:  periodStart(strings.ToLower(strings.TrimSpace(q.Period)), s.opt.Now()),
		Limit:  clampLimit(q.Limit),
		Offset: max(q.Offset, 0),
	}
	if k, ok := types.ParseEntityType(q.EntityType); ok {
		f.EntityType = k
	}

	items, err := s.logStore.ListLogs(ctx, f)
	if err != nil {
		return types.LogPage{}, err
	}
	return types.LogPage{Items: items, Count: len(items)}, nil
}

func periodStart(period string, now time.Time) time.Time {
	switch period {
	case "all":
		return time.Time{}
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, 0, -30)
	default:
		return now.AddDate(0, 0, -1)
	}
}

func clampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultLogLimit
	case n < 1:
		return 1
	case n > MaxLogLimit:
		return MaxLogLimit
	}
	return n
}
