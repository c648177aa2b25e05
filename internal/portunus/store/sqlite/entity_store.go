package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/portunus-bio/server/internal/db"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

// tables maps each entity kind to its table. Only these names are ever
// interpolated into SQL.
var tables = map[types.EntityType]string{
	types.EntityStudent:   "students",
	types.EntityProfessor: "professors",
}

func tableFor(kind types.EntityType) (string, error) {
	t, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", kind)
	}
	return t, nil
}

const entityColumns = `id, first_name, last_name, email, affiliation, number,
       fingerprint_enrolled, created_at_ms, updated_at_ms`

type EntityStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewEntityStore(db *sql.DB, writer *dbpkg.Worker) *EntityStore {
	return &EntityStore{db: db, writer: writer}
}

func (s *EntityStore) FindEntity(ctx context.Context, kind types.EntityType, id int) (types.Entity, bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return types.Entity{}, false, err
	}

	row := s.db.QueryRowContext(ctx, `
SELECT `+entityColumns+`
FROM `+table+`
WHERE id = ?;
`, id)
	e, err := scanEntity(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Entity{}, false, nil
	}
	if err != nil {
		return types.Entity{}, false, fmt.Errorf("FindEntity query: %w", err)
	}
	return e, true, nil
}

func (s *EntityStore) ListEntities(ctx context.Context, kind types.EntityType) ([]types.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+entityColumns+`
FROM `+table+`
ORDER BY id DESC;
`)
	if err != nil {
		return nil, fmt.Errorf("ListEntities query: %w", err)
	}
	defer rows.Close()

	out := make([]types.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("ListEntities scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateEntity picks the lowest slot unused by either table. The single
// writer serializes creates, so the choice cannot race.
func (s *EntityStore) CreateEntity(ctx context.Context, kind types.EntityType, rec store.EntityRecord) (types.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return types.Entity{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	ms := rec.CreatedAt.UTC().UnixMilli()
	rec.Email = strings.TrimSpace(rec.Email)

	var id int
	err = s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var dup int
		err := tx.QueryRowContext(ctx, `
SELECT 1 FROM `+table+` WHERE email = ? COLLATE NOCASE;
`, rec.Email).Scan(&dup)
		if err == nil {
			return store.ErrDuplicateEmail
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("CreateEntity check email: %w", err)
		}

		used, err := usedSlots(ctx, tx)
		if err != nil {
			return err
		}
		id, err = store.LowestFreeSlot(used)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO `+table+`(
  id, first_name, last_name, email, affiliation, number,
  fingerprint_enrolled, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?);
`, id, rec.FirstName, rec.LastName, rec.Email, rec.Affiliation, rec.Number, ms, ms); err != nil {
			return fmt.Errorf("CreateEntity insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Entity{}, err
	}

	created := time.UnixMilli(ms).UTC()
	return types.Entity{
		ID:          id,
		Type:        kind,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		Email:       rec.Email,
		Affiliation: rec.Affiliation,
		Number:      rec.Number,
		CreatedAt:   created,
		UpdatedAt:   created,
	}, nil
}

func (s *EntityStore) SetEnrolled(ctx context.Context, kind types.EntityType, id int, enrolled bool) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	var flag int
	if enrolled {
		flag = 1
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE `+table+`
SET fingerprint_enrolled = ?,
    updated_at_ms        = ?
WHERE id = ?;
`, flag, nowMs, id)
		if err != nil {
			return fmt.Errorf("SetEnrolled update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *EntityStore) DeleteEntity(ctx context.Context, kind types.EntityType, id int) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	var deleted bool
	err = s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("DeleteEntity: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}

func usedSlots(ctx context.Context, tx *sql.Tx) (map[int]bool, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT id FROM students
UNION ALL
SELECT id FROM professors;
`)
	if err != nil {
		return nil, fmt.Errorf("usedSlots query: %w", err)
	}
	defer rows.Close()

	used := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("usedSlots scan: %w", err)
		}
		used[id] = true
	}
	return used, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner, kind types.EntityType) (types.Entity, error) {
	var (
		e                  types.Entity
		enrolled           int
		createdMs, updated int64
	)
	if err := row.Scan(
		&e.ID, &e.FirstName, &e.LastName, &e.Email, &e.Affiliation, &e.Number,
		&enrolled, &createdMs, &updated,
	); err != nil {
		return types.Entity{}, err
	}
	e.Type = kind
	e.FingerprintEnrolled = enrolled == 1
	e.CreatedAt = time.UnixMilli(createdMs).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	return e, nil
}
