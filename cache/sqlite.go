package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const memoryDSN = "file::memory:?cache=shared"

// SQLiteCache stores entries in a single SQLite table.
// The database is opened lazily on first use.
type SQLiteCache struct {
	filename string

	mu sync.Mutex
	db *sql.DB
	// serializes writes, sqlite allows a single writer anyway
	writeMutex sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a shared in-memory db is used.
func NewSQLiteCache(filename string) *SQLiteCache {
	return &SQLiteCache{filename: filename}
}

func (s *SQLiteCache) Name() string {
	return "sqlite"
}

func (s *SQLiteCache) Location() string {
	if s.filename == "" {
		return memoryDSN
	}
	return s.filename
}

// open returns the database handle, creating the schema on first call.
func (s *SQLiteCache) open() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	dsn := s.Location()
	if s.filename != "" {
		if dir := filepath.Dir(s.filename); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create cache dir: %w", err)
			}
		}
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+"_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		created_at INTEGER,
		expires INTEGER,
		bytes BLOB
	)`,
		"CREATE INDEX IF NOT EXISTS expires_idx ON cache (expires)",
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init cache db: %w", err)
		}
	}
	s.db = db
	return db, nil
}

// initialized reports whether there is anything to operate on without
// creating a new database.
func (s *SQLiteCache) initialized() bool {
	s.mu.Lock()
	opened := s.db != nil
	s.mu.Unlock()
	if opened {
		return true
	}
	if s.filename == "" {
		return false
	}
	_, err := os.Stat(s.filename)
	return err == nil
}

func (s *SQLiteCache) Get(ctx context.Context, key string) (CacheEntry, bool, error) {
	db, err := s.open()
	if err != nil {
		return CacheEntry{}, false, err
	}
	entry := CacheEntry{Key: key}
	var created, expires int64
	err = db.QueryRowContext(ctx, "SELECT created_at, expires, bytes FROM cache WHERE key = ?", key).
		Scan(&created, &expires, &entry.Bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}
	entry.CreatedAt = time.UnixMilli(created)
	entry.Expires = time.UnixMilli(expires)
	return entry, true, nil
}

func (s *SQLiteCache) Put(ctx context.Context, ce CacheEntry) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO cache
		(key, created_at, expires, bytes) VALUES (?, ?, ?, ?)`,
		ce.Key, ce.CreatedAt.UnixMilli(), ce.Expires.UnixMilli(), ce.Bytes)
	return err
}

func (s *SQLiteCache) Purge(ctx context.Context, key string) (bool, error) {
	if !s.initialized() {
		return false, nil
	}
	db, err := s.open()
	if err != nil {
		return false, err
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *SQLiteCache) Clear(ctx context.Context) error {
	if !s.initialized() {
		return nil
	}
	db, err := s.open()
	if err != nil {
		return err
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err = db.ExecContext(ctx, "DELETE FROM cache")
	return err
}

func (s *SQLiteCache) All(ctx context.Context, prefix string) ([]CacheEntry, error) {
	entries := make([]CacheEntry, 0)
	if !s.initialized() {
		return entries, nil
	}
	db, err := s.open()
	if err != nil {
		return entries, err
	}
	rows, err := db.QueryContext(ctx, `SELECT
		key, created_at, expires, bytes
		FROM cache WHERE substr(key, 1, length(?)) = ? ORDER BY expires ASC`, prefix, prefix)
	if err != nil {
		return entries, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry CacheEntry
		var created, exp int64
		if err := rows.Scan(&entry.Key, &created, &exp, &entry.Bytes); err != nil {
			return entries, err
		}
		entry.CreatedAt = time.UnixMilli(created)
		entry.Expires = time.UnixMilli(exp)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteCache) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
