package assets

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps assets in a sqlite table keyed by (kind, key)
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assets (
	kind       TEXT NOT NULL,
	key        TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (kind, key)
);`

// OpenSQLite opens (creating if needed) a sqlite-backed store
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open assets db %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize assets schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(kind, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM assets WHERE kind = ? AND key = ?", kind, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %s/%s: %w", kind, key, err)
	}
	return data, nil
}

func (s *SQLiteStore) Save(kind, key string, data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO assets (kind, key, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (kind, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		kind, key, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save asset %s/%s: %w", kind, key, err)
	}
	return nil
}

func (s *SQLiteStore) Exists(kind, key string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM assets WHERE kind = ? AND key = ?", kind, key,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check asset %s/%s: %w", kind, key, err)
	}
	return true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
