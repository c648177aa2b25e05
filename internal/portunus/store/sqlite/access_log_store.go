package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/BrandonDHaskell/portunus-bio/server/internal/db"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

type AccessLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessLogStore(db *sql.DB, writer *dbpkg.Worker) *AccessLogStore {
	return &AccessLogStore{db: db, writer: writer}
}

func (s *AccessLogStore) AppendLog(ctx context.Context, rec store.AccessLogRecord) (types.AccessEvent, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}
	ms := rec.CreatedAt.UTC().UnixMilli()

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO access_logs(
  event_id, entity_type, entity_id, status, reason, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?);
`, rec.EventID, string(rec.EntityType), rec.EntityID, string(rec.Status), rec.Reason, ms)
		if err != nil {
			return fmt.Errorf("AppendLog insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("AppendLog id: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.AccessEvent{}, err
	}

	return types.AccessEvent{
		ID:         id,
		EventID:    rec.EventID,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Status:     rec.Status,
		Reason:     rec.Reason,
		CreatedAt:  time.UnixMilli(ms).UTC(),
	}, nil
}

// ListLogs returns rows newest first. Limit <= 0 means no limit.
func (s *AccessLogStore) ListLogs(ctx context.Context, f store.LogFilter) ([]types.AccessEvent, error) {
	var (
		where []string
		args  []any
	)
	if !f.Since.IsZero() {
		where = append(where, "created_at_ms >= ?")
		args = append(args, f.Since.UTC().UnixMilli())
	}
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(f.EntityType))
	}

	q := `
SELECT id, event_id, entity_type, entity_id, status, reason, created_at_ms
FROM access_logs`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	q += "\nORDER BY id DESC\nLIMIT ? OFFSET ?;"
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListLogs query: %w", err)
	}
	defer rows.Close()

	out := make([]types.AccessEvent, 0)
	for rows.Next() {
		var (
			ev         types.AccessEvent
			entityType string
			status     string
			createdMs  int64
		)
		if err := rows.Scan(&ev.ID, &ev.EventID, &entityType, &ev.EntityID, &status, &ev.Reason, &createdMs); err != nil {
			return nil, fmt.Errorf("ListLogs scan: %w", err)
		}
		ev.EntityType = types.EntityType(entityType)
		ev.Status = types.AccessStatus(status)
		ev.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes access_logs rows created before the given cutoff
// time.  Returns the number of rows deleted.
//
// Uses the idx_access_logs_time index for an efficient range scan.
func (s *AccessLogStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM access_logs
WHERE created_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
