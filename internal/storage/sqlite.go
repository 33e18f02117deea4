package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteMedium stores slots in a single kv table.
type SQLiteMedium struct {
	db *sql.DB
}

// NewSQLiteMedium opens or creates a SQLite database at dbPath.
func NewSQLiteMedium(dbPath string) (*SQLiteMedium, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps reads and writes strictly ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteMedium{db: db}, nil
}

// Close closes the database connection.
func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}

// Get gets a value from the kv table.
func (m *SQLiteMedium) Get(key string) (string, bool, error) {
	var value string
	err := m.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set sets a value in the kv table.
func (m *SQLiteMedium) Set(key, value string) error {
	_, err := m.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?",
		key, value, value,
	)
	return err
}

// Remove deletes a key from the kv table.
func (m *SQLiteMedium) Remove(key string) error {
	_, err := m.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}

// Keys lists every key in ascending order.
func (m *SQLiteMedium) Keys() ([]string, error) {
	rows, err := m.db.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
