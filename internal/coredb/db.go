// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coredb keeps the preparation journal in a small SQLite file under
// the data directory.
package coredb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/neurogears/antsct-prep/internal/paths"
	_ "modernc.org/sqlite"
)

// FileName is the journal database inside the data directory.
const FileName = "antsct-prep.db"

const (
	sqliteDriverName = "sqlite"
	busyTimeout      = 5 * time.Second
	pageSize         = 4096

	// One run writes a handful of small events, so the budgets stay small.
	defaultMaxBytes        = 8 << 20 // 8 MiB
	defaultJournalMaxBytes = 4 << 20 // 4 MiB
)

// Options controls where the journal lives and how large it may grow.
type Options struct {
	// DataDir holds the DB file. Empty means paths.DataDir().
	DataDir string
	// MaxBytes caps the whole DB file (max_page_count).
	MaxBytes int64
	// JournalMaxBytes caps the summed event payloads; older events are
	// evicted past it.
	JournalMaxBytes int64
}

func (o Options) withDefaults() Options {
	if o.DataDir == "" {
		o.DataDir = paths.DataDir()
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = defaultMaxBytes
	}
	if o.JournalMaxBytes <= 0 {
		o.JournalMaxBytes = defaultJournalMaxBytes
	}
	if o.JournalMaxBytes > o.MaxBytes {
		o.JournalMaxBytes = o.MaxBytes
	}
	return o
}

// DB is an open journal database.
type DB struct {
	sql             *sql.DB
	journalMaxBytes int64
}

// Open creates the data directory if needed, opens the DB in WAL mode and
// applies the schema. Readers such as `history` may open it while a
// preparation run is writing.
func Open(ctx context.Context, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	conn, err := sql.Open(sqliteDriverName, dsn(filepath.Join(opts.DataDir, FileName), opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open journal %s: %w", opts.DataDir, err)
	}
	if err := applyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &DB{sql: conn, journalMaxBytes: opts.JournalMaxBytes}, nil
}

// dsn carries every pragma so a reconnect by the pool is configured the same way.
func dsn(path string, opts Options) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", fmt.Sprintf("max_page_count(%d)", opts.MaxBytes/pageSize))
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

// Close shuts down the underlying SQLite connection.
func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}
