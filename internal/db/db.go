// Package db keeps run history and short-term memory in SQLite.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DefaultPath is the database location relative to the working directory.
var DefaultPath = filepath.Join(".rolecall", "rolecall.db")

//go:embed migrations/*.sql
var migrationsFS embed.FS

type pragma struct {
	stmt string
	// optional pragmas only log on failure; in-memory databases reject WAL.
	optional bool
}

var pragmas = []pragma{
	{stmt: "PRAGMA foreign_keys=ON"},
	{stmt: "PRAGMA busy_timeout=5000"},
	{stmt: "PRAGMA journal_mode=WAL", optional: true},
}

// goose keeps dialect and base FS in package globals.
var gooseMu sync.Mutex

// Open opens the history database at path, creating parent directories.
// The schema is migrated to the latest version before Open returns.
func Open(path string) (*sql.DB, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}
	// One writer: concurrent tasks share the connection for memory writes.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	version, err := prepare(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Int64("schema", version).Msg("db: ready")
	return conn, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %s: %w", dir, err)
	}
	return nil
}

func prepare(conn *sql.DB) (int64, error) {
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			if p.optional {
				log.Warn().Err(err).Str("pragma", p.stmt).Msg("db: pragma skipped")
				continue
			}
			return 0, fmt.Errorf("%s: %w", p.stmt, err)
		}
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		return 0, fmt.Errorf("migrate history db: %w", err)
	}
	version, err := goose.GetDBVersion(conn)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
