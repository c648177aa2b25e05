package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const DefaultPath = "./data/portunus-bio.db"

// Per-connection PRAGMAs: WAL, NORMAL sync and a busy timeout so the
// single writer never trips SQLITE_BUSY against a reader.
const pragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

type Config struct {
	Path   string // e.g. "./data/portunus-bio.db"
	Logger zerolog.Logger
}

// Open opens the database file, creating its directory, and migrates it.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	return open(ctx, fmt.Sprintf("file:%s?%s", cfg.Path, pragmas), cfg.Logger.With().Str("db", cfg.Path).Logger())
}

// OpenInMemory opens a private in-memory database with the production
// schema. Each distinct name is a separate database.
func OpenInMemory(ctx context.Context, name string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", url.PathEscape(name), pragmas)
	return open(ctx, dsn, zerolog.Nop())
}

func open(ctx context.Context, dsn string, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// One connection: writes are serialized by Worker anyway, and an
	// in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	applied, err := Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if len(applied) > 0 {
		log.Info().Ints("versions", applied).Msg("migrations applied")
	}
	return db, nil
}
