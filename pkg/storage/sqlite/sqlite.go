// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/polar/pkg/storage"
	"github.com/papercomputeco/polar/pkg/storage/sqldriver"
)

var dialect = sqldriver.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS items (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			bias_score REAL NOT NULL DEFAULT 0,
			embedding BLOB,
			dims INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL DEFAULT '',
			uploader_id TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			bias_score REAL NOT NULL DEFAULT 0,
			pole_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS visited (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			visited_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, item_id)
		)`,
		`CREATE INDEX IF NOT EXISTS visited_item_idx ON visited (item_id)`,
	},
}

// Option configures a Driver.
type Option func(*options)

type options struct {
	commitHook storage.CommitHook
}

// WithCommitHook installs a hook that runs between the user write and the
// visited write of every Commit.
func WithCommitHook(h storage.CommitHook) Option {
	return func(o *options) {
		o.commitHook = h
	}
}

// Driver implements storage.Driver using SQLite.
type Driver struct {
	*sqldriver.Driver
}

// NewDriver creates a new SQLite-backed storer.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string, opts ...Option) (*Driver, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	// SQLite-specific pragmas
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	drv, err := sqldriver.New(ctx, db, dialect, o.commitHook)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Driver{Driver: drv}, nil
}
