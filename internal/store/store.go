// Package store persists verification records in SQLite. Each record is
// stored as one JSON document plus the columns needed for lookup, so
// the record shape can evolve without migrations. Lookups are
// most-recent-wins per program.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"polistep/internal/logging"
	"polistep/internal/types"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open initializes the database at path, creating directories and
// schema as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("store opened at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS verification_records (
		id TEXT PRIMARY KEY,
		program_title TEXT NOT NULL,
		target_url TEXT NOT NULL,
		status TEXT NOT NULL,
		doc TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_verified_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_title ON verification_records(program_title);
	CREATE INDEX IF NOT EXISTS idx_records_url ON verification_records(target_url);
	CREATE INDEX IF NOT EXISTS idx_records_verified ON verification_records(last_verified_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecord inserts or replaces one record by ID.
func (s *Store) SaveRecord(rec *types.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO verification_records
		(id, program_title, target_url, status, doc, created_at, last_verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProgramTitle, rec.TargetURL, string(rec.Status), string(doc),
		rec.CreatedAt.UTC(), rec.LastVerifiedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	logging.Store("record saved: %s status=%s", rec.ID, rec.Status)
	return nil
}

// LatestRecord returns the most recently verified record for a program
// title, or nil when none exists.
func (s *Store) LatestRecord(programTitle string) (*types.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT doc FROM verification_records
		WHERE program_title = ?
		ORDER BY last_verified_at DESC LIMIT 1`, programTitle)
	return scanRecord(row)
}

// HasPending reports whether a PENDING record exists for the program;
// a pending run blocks a new one unless forced.
func (s *Store) HasPending(programTitle string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM verification_records
		WHERE program_title = ? AND status = ?`,
		programTitle, string(types.StatusPending)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("pending check: %w", err)
	}
	return n > 0, nil
}

// ListRecords returns records ordered newest first.
func (s *Store) ListRecords(limit int) ([]*types.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT doc FROM verification_records
		ORDER BY last_verified_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*types.VerificationRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec types.VerificationRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			logging.Store("skipping undecodable record: %v", err)
			continue
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SuccessfulPaths returns, per target URL, the navigation path of the
// most recent successful record. Used to seed the navigation cache.
func (s *Store) SuccessfulPaths() (map[string][]types.NavigationStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT doc FROM verification_records
		WHERE status = ?
		ORDER BY last_verified_at ASC`, string(types.StatusSuccess))
	if err != nil {
		return nil, fmt.Errorf("load paths: %w", err)
	}
	defer rows.Close()

	// Ascending order so later rows overwrite earlier ones.
	out := make(map[string][]types.NavigationStep)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec types.VerificationRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			continue
		}
		if len(rec.NavigationPath) > 0 {
			out[rec.TargetURL] = rec.NavigationPath
		}
	}
	return out, rows.Err()
}

// MarkPending inserts a fresh PENDING record and returns it.
func (s *Store) MarkPending(id, programTitle, targetURL string) (*types.VerificationRecord, error) {
	now := time.Now().UTC()
	rec := &types.VerificationRecord{
		ID:             id,
		ProgramTitle:   programTitle,
		TargetURL:      targetURL,
		Status:         types.StatusPending,
		CreatedAt:      now,
		LastVerifiedAt: now,
	}
	if err := s.SaveRecord(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func scanRecord(row *sql.Row) (*types.VerificationRecord, error) {
	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	var rec types.VerificationRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
