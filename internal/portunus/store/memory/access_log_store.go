package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

// AccessLogStore is an in-memory append-only log of access decisions.
// It is intended for use in tests and dev environments.
type AccessLogStore struct {
	mu     sync.Mutex
	nextID int64
	events []types.AccessEvent
}

func NewAccessLogStore() *AccessLogStore {
	return &AccessLogStore{nextID: 1}
}

func (s *AccessLogStore) AppendLog(_ context.Context, rec store.AccessLogRecord) (types.AccessEvent, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := types.AccessEvent{
		ID:         s.nextID,
		EventID:    rec.EventID,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Status:     rec.Status,
		Reason:     rec.Reason,
		CreatedAt:  rec.CreatedAt.UTC(),
	}
	s.nextID++
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *AccessLogStore) ListLogs(_ context.Context, f store.LogFilter) ([]types.AccessEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.AccessEvent, 0)
	skipped := 0
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if !f.Since.IsZero() && ev.CreatedAt.Before(f.Since) {
			continue
		}
		if f.EntityType != "" && ev.EntityType != f.EntityType {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *AccessLogStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for _, ev := range s.events {
		if ev.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

// Events returns a copy of all recorded events, oldest first.  Test-only helper.
func (s *AccessLogStore) Events() []types.AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AccessEvent, len(s.events))
	copy(out, s.events)
	return out
}
