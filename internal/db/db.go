// Package db persists the session log to SQLite. A *DB is an events.Sink:
// every shot, state change, target change and camera-closed notice the
// capture core emits is written as one row.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/lasershot/internal/monitoring"
)

//go:embed migrations/*.sql
var migrations embed.FS

// pragmas are applied to every connection opened through OpenDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

type DB struct {
	*sql.DB
}

// MigrationsFS returns the embedded migration files rooted at the
// migrations directory.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		// the embed pattern guarantees the directory
		panic(err)
	}
	return sub
}

// NewDB opens path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion(MigrationsFS())
	if err == nil {
		monitoring.Logf("[db] %s at schema version %d", path, version)
	}
	return db, nil
}

// OpenDB opens path and applies the connection pragmas without touching the
// schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps the pragmas in force and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &DB{sqlDB}, nil
}
