package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteKVStore is a KVStore backed by a SQLite database file.
type SQLiteKVStore struct {
	db *sql.DB
}

// NewSQLiteKVStore opens (and creates if needed) a SQLite store.
// Use ":memory:" for a private in-memory database.
func NewSQLiteKVStore(dsn string) (*SQLiteKVStore, error) {
	inMemory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	if !inMemory {
		path := strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteKVStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteKVStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			collection TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, key)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Put stores a value.
func (s *SQLiteKVStore) Put(ctx context.Context, key string, val StoredValue, collection string) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("value is not JSON-serializable: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (collection, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		collectionOrDefault(collection), key, string(data))
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Get returns the value, or nil when missing.
func (s *SQLiteKVStore) Get(ctx context.Context, key string, collection string) (StoredValue, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE collection = ? AND key = ?`,
		collectionOrDefault(collection), key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return decodeValue(raw)
}

// GetAll returns every value of a collection.
func (s *SQLiteKVStore) GetAll(ctx context.Context, collection string) (map[string]StoredValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE collection = ?`, collectionOrDefault(collection))
	if err != nil {
		return nil, fmt.Errorf("failed to list collection: %w", err)
	}
	defer rows.Close()

	out := make(map[string]StoredValue)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

// Delete removes a value.
func (s *SQLiteKVStore) Delete(ctx context.Context, key string, collection string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE collection = ? AND key = ?`, collectionOrDefault(collection), key)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the database.
func (s *SQLiteKVStore) Close() error {
	return s.db.Close()
}

func decodeValue(raw string) (StoredValue, error) {
	var v StoredValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("failed to decode stored value: %w", err)
	}
	return v, nil
}

var _ KVStore = (*SQLiteKVStore)(nil)
