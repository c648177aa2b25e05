package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

// Reader slots are shared by students and professors, so entity ids are
// allocated from one space across both kinds.
const (
	MinSlot = 1
	MaxSlot = 127
)

var (
	ErrNotFound       = errors.New("entity not found")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrNoFreeSlot     = errors.New("no free fingerprint slot")
)

type EntityRecord struct {
	FirstName   string
	LastName    string
	Email       string
	Affiliation string
	Number      string
	CreatedAt   time.Time
}

// EntityStore holds students and professors. Ids are unique across both
// kinds and lie in [MinSlot, MaxSlot].
type EntityStore interface {
	FindEntity(ctx context.Context, kind types.EntityType, id int) (types.Entity, bool, error)
	ListEntities(ctx context.Context, kind types.EntityType) ([]types.Entity, error)
	CreateEntity(ctx context.Context, kind types.EntityType, rec EntityRecord) (types.Entity, error)
	SetEnrolled(ctx context.Context, kind types.EntityType, id int, enrolled bool) error
	DeleteEntity(ctx context.Context, kind types.EntityType, id int) (bool, error)
}

// AccessLogRecord captures a single access decision for the audit log.
type AccessLogRecord struct {
	EventID    string
	EntityType types.EntityType
	EntityID   int
	Status     types.AccessStatus
	Reason     string
	CreatedAt  time.Time
}

// LogFilter selects audit rows newest first. A zero Since means no lower
// bound; an empty EntityType matches both kinds.
type LogFilter struct {
	Since      time.Time
	EntityType types.EntityType
	Limit      int
	Offset     int
}

// AccessLogStore persists access decisions as an append-only audit log.
type AccessLogStore interface {
	AppendLog(ctx context.Context, rec AccessLogRecord) (types.AccessEvent, error)
	ListLogs(ctx context.Context, f LogFilter) ([]types.AccessEvent, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LowestFreeSlot returns the smallest slot in [MinSlot, MaxSlot] not in used.
func LowestFreeSlot(used map[int]bool) (int, error) {
	for s := MinSlot; s <= MaxSlot; s++ {
		if !used[s] {
			return s, nil
		}
	}
	return 0, ErrNoFreeSlot
}
