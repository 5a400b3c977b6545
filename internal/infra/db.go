package infra

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a connection. Values match the
// dialect names understood by goose.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// DatabaseTarget is the resolved form of DATABASE_URL.
type DatabaseTarget struct {
	Dialect Dialect
	Driver  string
	DSN     string
	// Path is the database file for SQLite targets, empty for in-memory or Postgres.
	Path string
}

var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

// ParseDatabaseURL accepts postgres:// URLs and SQLite locations written as
// sqlite:///relative.db, sqlite:////absolute.db, file:path.db or a bare path.
func ParseDatabaseURL(raw string) (DatabaseTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DatabaseTarget{}, fmt.Errorf("DATABASE_URL is required")
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DatabaseTarget{Dialect: DialectPostgres, Driver: "pgx", DSN: raw}, nil
	case strings.HasPrefix(lower, "sqlite://"):
		path := raw[len("sqlite://"):]
		// SQLAlchemy style: one extra slash separates the authority from the path.
		path = strings.TrimPrefix(path, "/")
		return sqliteTarget(path)
	case strings.HasPrefix(lower, "file:"):
		return sqliteTarget(raw[len("file:"):])
	case strings.Contains(lower, "://"):
		return DatabaseTarget{}, fmt.Errorf("unsupported DATABASE_URL scheme: %s", raw)
	default:
		return sqliteTarget(raw)
	}
}

func sqliteTarget(path string) (DatabaseTarget, error) {
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return DatabaseTarget{}, fmt.Errorf("sqlite database path is empty")
	}
	params := make([]string, 0, len(sqlitePragmas)+1)
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	// Sortable text timestamps, so ORDER BY created_at is chronological.
	params = append(params, "_time_format=sqlite")
	target := DatabaseTarget{
		Dialect: DialectSQLite,
		Driver:  "sqlite",
		DSN:     path + "?" + strings.Join(params, "&"),
	}
	if path != ":memory:" {
		target.Path = path
	}
	return target, nil
}

// OpenDB opens and pings the configured datastore.
func OpenDB(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	target, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, "", err
	}
	if target.Path != "" {
		if err := os.MkdirAll(filepath.Dir(target.Path), 0o755); err != nil {
			return nil, "", fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}

	switch target.Dialect {
	case DialectSQLite:
		// SQLite has a single writer; one connection keeps transactions serialised.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("connect database: %w", err)
	}

	return db, target.Dialect, nil
}
