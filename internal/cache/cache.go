// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package cache stores compare responses in SQLite for ETag
// revalidation.
//
// Entries are keyed by "owner/repo/base...head" and hold the upstream
// ETag plus the decoded file list. A hit lets the caller issue a
// conditional request; a 304 answer reuses the cached files without
// spending a rate-limit credit. Entries carry no TTL, freshness is
// settled by revalidation.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/kleewho/gh-dir-diff/internal/diff"
)

// schema is the compare-cache table.
const schema = `
CREATE TABLE IF NOT EXISTS compares (
	key        TEXT PRIMARY KEY,
	etag       TEXT NOT NULL,
	files      BLOB NOT NULL,
	fetched_at INTEGER NOT NULL
);
`

// Entry is a cached compare response.
type Entry struct {
	ETag  string
	Files []diff.FileChange
}

// Store is a SQLite-backed compare cache. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Key builds the cache key for a compare.
func Key(owner, repo, base, head string) string {
	return owner + "/" + repo + "/" + base + "..." + head
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached entry for key, if any.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		etag string
		blob []byte
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT etag, files FROM compares WHERE key = ?", key,
	).Scan(&etag, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get: %w", err)
	}

	var files []diff.FileChange
	if err := json.Unmarshal(blob, &files); err != nil {
		// Corrupt entry, drop it and report a miss.
		_, _ = s.db.ExecContext(ctx, "DELETE FROM compares WHERE key = ?", key)
		return Entry{}, false, nil
	}
	return Entry{ETag: etag, Files: files}, true, nil
}

// Put stores or replaces the entry for key.
func (s *Store) Put(ctx context.Context, key, etag string, files []diff.FileChange) error {
	blob, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO compares (key, etag, files, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET etag = excluded.etag, files = excluded.files, fetched_at = excluded.fetched_at`,
		key, etag, blob, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete removes the entry for key, if present.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM compares WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Purge removes all entries.
func (s *Store) Purge(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM compares")
	if err != nil {
		return fmt.Errorf("cache purge: %w", err)
	}
	return nil
}

// Len returns the number of cached compares.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM compares").Scan(&n); err != nil {
		return 0, fmt.Errorf("cache len: %w", err)
	}
	return n, nil
}
