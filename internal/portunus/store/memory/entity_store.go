package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

type entityKey struct {
	kind types.EntityType
	id   int
}

// EntityStore keeps students and professors in a map.
// It is intended for use in tests and dev environments.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[entityKey]types.Entity
}

func NewEntityStore(seed ...types.Entity) *EntityStore {
	s := &EntityStore{entities: make(map[entityKey]types.Entity, len(seed))}
	for _, e := range seed {
		s.entities[entityKey{e.Type, e.ID}] = e
	}
	return s
}

func (s *EntityStore) FindEntity(_ context.Context, kind types.EntityType, id int) (types.Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityKey{kind, id}]
	return e, ok, nil
}

func (s *EntityStore) ListEntities(_ context.Context, kind types.EntityType) ([]types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Entity, 0)
	for k, e := range s.entities {
		if k.kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *EntityStore) CreateEntity(_ context.Context, kind types.EntityType, rec store.EntityRecord) (types.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := make(map[int]bool, len(s.entities))
	for k, e := range s.entities {
		if k.kind == kind && strings.EqualFold(e.Email, rec.Email) {
			return types.Entity{}, store.ErrDuplicateEmail
		}
		used[k.id] = true
	}
	id, err := store.LowestFreeSlot(used)
	if err != nil {
		return types.Entity{}, err
	}

	now := rec.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	e := types.Entity{
		ID:          id,
		Type:        kind,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		Email:       rec.Email,
		Affiliation: rec.Affiliation,
		Number:      rec.Number,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.entities[entityKey{kind, id}] = e
	return e, nil
}

func (s *EntityStore) SetEnrolled(_ context.Context, kind types.EntityType, id int, enrolled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entityKey{kind, id}
	e, ok := s.entities[k]
	if !ok {
		return store.ErrNotFound
	}
	e.FingerprintEnrolled = enrolled
	e.UpdatedAt = time.Now().UTC()
	s.entities[k] = e
	return nil
}

func (s *EntityStore) DeleteEntity(_ context.Context, kind types.EntityType, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entityKey{kind, id}
	if _, ok := s.entities[k]; !ok {
		return false, nil
	}
	delete(s.entities, k)
	return true, nil
}
