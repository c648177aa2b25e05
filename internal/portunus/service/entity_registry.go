package service

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

var (
	ErrInvalidEntityType = errors.New("entity_type must be 'student' or 'professor'")
	ErrInvalidEntityID   = errors.New("entity_id must be a non-negative integer")
)

type EntityRegistry struct {
	store store.EntityStore
}

func NewEntityRegistry(st store.EntityStore) *EntityRegistry {
	return &EntityRegistry{store: st}
}

// Find resolves kind and id to a stored entity. Malformed input is an
// error; a well-formed miss is (zero, false, nil).
func (r *EntityRegistry) Find(ctx context.Context, kind string, id int) (types.Entity, bool, error) {
	k, ok := types.ParseEntityType(kind)
	if !ok {
		return types.Entity{}, false, ErrInvalidEntityType
	}
	if id < 0 {
		return types.Entity{}, false, ErrInvalidEntityID
	}
	return r.store.FindEntity(ctx, k, id)
}

func (r *EntityRegistry) List(ctx context.Context, kind string) ([]types.Entity, error) {
	k, ok := types.ParseEntityType(kind)
	if !ok {
		return nil, ErrInvalidEntityType
	}
	return r.store.ListEntities(ctx, k)
}
