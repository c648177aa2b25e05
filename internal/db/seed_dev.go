package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type seedPerson struct {
	table       string
	id          int
	first, last string
	email       string
	affiliation string
	number      string
}

// Dev records are stored not enrolled; their fingers must be captured on a
// real reader before they can be verified.
var devPeople = []seedPerson{
	{"students", 1, "Ada", "Lovelace", "ada.lovelace@example.edu", "Math", "S100001"},
	{"students", 2, "Alan", "Turing", "alan.turing@example.edu", "CS", "S100002"},
	{"students", 3, "Rosalind", "Franklin", "rosalind.franklin@example.edu", "Biology", "S100003"},
	{"professors", 10, "Grace", "Hopper", "grace.hopper@example.edu", "CS", "E200010"},
	{"professors", 11, "Emmy", "Noether", "emmy.noether@example.edu", "Math", "E200011"},
}

// SeedDev inserts a few students and professors for local development. A
// record is skipped when its id is taken in either table or its email is
// already present, so it is safe to run on every start. It returns the
// number of rows inserted.
func SeedDev(ctx context.Context, db *sql.DB) (int, error) {
	now := time.Now().UTC().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, p := range devPeople {
		res, err := tx.ExecContext(ctx, `
INSERT INTO `+p.table+`(id, first_name, last_name, email, affiliation, number, fingerprint_enrolled, created_at_ms, updated_at_ms)
SELECT ?, ?, ?, ?, ?, ?, 0, ?, ?
WHERE NOT EXISTS (SELECT 1 FROM students WHERE id = ?)
  AND NOT EXISTS (SELECT 1 FROM professors WHERE id = ?)
  AND NOT EXISTS (SELECT 1 FROM `+p.table+` WHERE email = ?);`,
			p.id, p.first, p.last, p.email, p.affiliation, p.number, now, now,
			p.id, p.id, p.email)
		if err != nil {
			return 0, fmt.Errorf("seed %s %d: %w", p.table, p.id, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed commit: %w", err)
	}
	return inserted, nil
}
