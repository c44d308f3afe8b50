// Package persistent provides the SQLite-backed organizational memory tier.
//
// Items live forever under logical keys ("naming_conventions",
// "client_patterns"). Mutate runs read-modify-write inside a transaction on
// a single-connection pool, so concurrent accumulation on the same key
// serializes instead of losing updates.
package persistent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillworks/quill/pkg/memory"
)

// Store implements memory.PersistentTier using SQLite.
type Store struct {
	db *sql.DB
}

// Config holds configuration for the persistent tier.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// New creates a SQLite-backed persistent store.
func New(c Config) (*Store, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Mutate relies on SQLite's single-writer lock; one connection keeps
	// in-memory databases coherent as well.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_items (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Store persists an item, replacing any existing item under the same key.
func (s *Store) Store(ctx context.Context, item memory.Item) error {
	valueJSON, metadataJSON, err := encode(item)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_items (key, value, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, item.Key, valueJSON, metadataJSON, now, now)
	if err != nil {
		return fmt.Errorf("storing item %s: %w", item.Key, err)
	}

	return nil
}

// Retrieve returns the item under key, or memory.ErrNotFound.
func (s *Store) Retrieve(ctx context.Context, key string) (*memory.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT value, metadata, created_at, updated_at
		FROM memory_items WHERE key = ?
	`, key)

	return scanItem(row, key)
}

// Update replaces the value and metadata of an existing item.
func (s *Store) Update(ctx context.Context, key string, value map[string]any, metadata map[string]string) error {
	valueJSON, metadataJSON, err := encode(memory.Item{Value: value, Metadata: metadata})
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memory_items SET value = ?, metadata = ?, updated_at = ?
		WHERE key = ?
	`, valueJSON, metadataJSON, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of %s: %w", key, err)
	}
	if affected == 0 {
		return memory.ErrNotFound
	}

	return nil
}

// Delete removes the item under key. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting item %s: %w", key, err)
	}
	return nil
}

// Exists reports whether the key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memory_items WHERE key = ?`, key).Scan(&one)
	switch err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("checking item %s: %w", key, err)
	}
}

// Mutate applies an atomic read-modify-write to one key. The callback sees
// nil when the key is absent; its return value replaces the stored value.
func (s *Store) Mutate(ctx context.Context, key string, fn func(value map[string]any) map[string]any) error {
	// The single-connection pool plus the transaction hold the write
	// lock across the read, so two concurrent mutations on the same key
	// serialize instead of overwriting each other.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current map[string]any
	var createdAt time.Time

	var valueJSON string
	err = tx.QueryRowContext(ctx, `SELECT value, created_at FROM memory_items WHERE key = ?`, key).
		Scan(&valueJSON, &createdAt)
	switch err {
	case nil:
		if err := json.Unmarshal([]byte(valueJSON), &current); err != nil {
			return fmt.Errorf("decoding value of %s: %w", key, err)
		}
	case sql.ErrNoRows:
		createdAt = time.Now().UTC()
	default:
		return fmt.Errorf("reading item %s: %w", key, err)
	}

	next := fn(current)
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding value of %s: %w", key, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_items (key, value, metadata, created_at, updated_at)
		VALUES (?, ?, '{}', ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(nextJSON), createdAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing item %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing mutation of %s: %w", key, err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func encode(item memory.Item) (string, string, error) {
	value := item.Value
	if value == nil {
		value = map[string]any{}
	}
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return "", "", fmt.Errorf("encoding value: %w", err)
	}

	metadata := item.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", "", fmt.Errorf("encoding metadata: %w", err)
	}

	return string(valueJSON), string(metadataJSON), nil
}

func scanItem(row *sql.Row, key string) (*memory.Item, error) {
	var valueJSON, metadataJSON string
	var createdAt, updatedAt time.Time

	err := row.Scan(&valueJSON, &metadataJSON, &createdAt, &updatedAt)
	switch err {
	case nil:
	case sql.ErrNoRows:
		return nil, memory.ErrNotFound
	default:
		return nil, fmt.Errorf("reading item %s: %w", key, err)
	}

	item := &memory.Item{
		Key:       key,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if err := json.Unmarshal([]byte(valueJSON), &item.Value); err != nil {
		return nil, fmt.Errorf("decoding value of %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &item.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata of %s: %w", key, err)
	}

	return item, nil
}

// Ensure Store implements memory.PersistentTier
var _ memory.PersistentTier = (*Store)(nil)
