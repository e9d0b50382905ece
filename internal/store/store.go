// Package store persists download records, per-download logs and settings in
// SQLite.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"downlink/internal/apperrors"
)

const schemaVersion = 1

// Store wraps the SQLite database. A single mutex serializes all access;
// SQLite handles one writer at a time and the daemon's query volume is tiny.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and migrates it to
// the current schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL")
	if err != nil {
		return nil, apperrors.Internal("open database", err)
	}
	// The mutex is the real concurrency gate; one connection avoids
	// SQLITE_BUSY between pooled handles.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		path:   path,
		logger: slog.With("component", "store"),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Ping verifies the database is reachable.
func (s *Store) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Ping()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
		  key TEXT PRIMARY KEY,
		  value TEXT NOT NULL
		);
	`); err != nil {
		return apperrors.Internal("create meta table", err)
	}

	var raw string
	current := 0
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return apperrors.Internal("read schema version", err)
	default:
		if v, perr := strconv.Atoi(raw); perr == nil {
			current = v
		}
	}

	if current > schemaVersion {
		return apperrors.Internal("migrate",
			fmt.Errorf("database schema version %d is newer than this build supports (%d)", current, schemaVersion))
	}

	if current == 0 {
		if err := s.migrationV1(); err != nil {
			return err
		}
		if err := s.setSchemaVersion(1); err != nil {
			return err
		}
		s.logger.Info("Database migrated", "version", 1)
	}
	return nil
}

func (s *Store) setSchemaVersion(v int) error {
	_, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(v))
	if err != nil {
		return apperrors.Internal("set schema version", err)
	}
	return nil
}

func (s *Store) migrationV1() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS downloads (
		  id TEXT PRIMARY KEY,
		  created_at TEXT NOT NULL,
		  updated_at TEXT NOT NULL,

		  source_url TEXT NOT NULL,
		  source_kind TEXT NOT NULL,
		  parent_id TEXT NULL,

		  title TEXT NULL,
		  uploader TEXT NULL,
		  duration_seconds INTEGER NULL,
		  thumbnail_url TEXT NULL,

		  status TEXT NOT NULL,
		  phase TEXT NULL,

		  preset_id TEXT NOT NULL,
		  output_dir TEXT NOT NULL,

		  final_path TEXT NULL,

		  progress_percent REAL NULL,
		  bytes_downloaded INTEGER NULL,
		  bytes_total INTEGER NULL,
		  speed_bps INTEGER NULL,
		  eta_seconds INTEGER NULL,

		  error_code TEXT NULL,
		  error_message TEXT NULL,

		  FOREIGN KEY(parent_id) REFERENCES downloads(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
		CREATE INDEX IF NOT EXISTS idx_downloads_parent ON downloads(parent_id);
		CREATE INDEX IF NOT EXISTS idx_downloads_created_at ON downloads(created_at);

		CREATE TABLE IF NOT EXISTS download_logs (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  download_id TEXT NOT NULL,
		  ts TEXT NOT NULL,
		  stream TEXT NOT NULL,
		  line TEXT NOT NULL,
		  FOREIGN KEY(download_id) REFERENCES downloads(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_download_logs_download_id ON download_logs(download_id);

		CREATE TABLE IF NOT EXISTS settings (
		  key TEXT PRIMARY KEY,
		  value_json TEXT NOT NULL
		);
	`)
	if err != nil {
		return apperrors.Internal("apply schema v1", err)
	}
	return nil
}
