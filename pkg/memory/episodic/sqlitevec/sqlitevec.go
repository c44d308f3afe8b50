// Package sqlitevec provides a SQLite-backed episodic tier using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/embeddings"
	"github.com/quillworks/quill/pkg/memory"
)

// Store implements memory.EpisodicTier using SQLite with sqlite-vec.
type Store struct {
	db       *sql.DB
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// Config holds configuration for the sqlite-vec episodic tier.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// New creates a sqlite-vec backed episodic store. The embedder converts
// episode text to vectors on write and query text to vectors on search.
func New(c Config, embedder embeddings.Embedder, logger *zap.Logger) (*Store, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// The episodes table maps string keys to integer rowids, which the
	// vec0 virtual table requires.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS episodes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			value TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating episodes table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS episode_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec episodic tier initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Store persists an episode and its embedding, replacing any existing
// episode under the same key.
func (s *Store) Store(ctx context.Context, item memory.Item) error {
	embedding, err := s.embedItem(ctx, item)
	if err != nil {
		return err
	}

	valueJSON, metadataJSON, err := encode(item)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	embBlob := serializeFloat32(embedding)

	var existingRowID int64
	err = tx.QueryRowContext(ctx, `SELECT rowid FROM episodes WHERE key = ?`, item.Key).Scan(&existingRowID)

	switch err {
	case nil:
		// Episode exists, update the row and embedding.
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes SET value = ?, metadata = ?, updated_at = ? WHERE rowid = ?`,
			valueJSON, metadataJSON, now, existingRowID,
		); err != nil {
			return fmt.Errorf("updating episode %s: %w", item.Key, err)
		}

		// vec0 does not support UPDATE
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM episode_embeddings WHERE rowid = ?`, existingRowID,
		); err != nil {
			return fmt.Errorf("deleting old embedding for %s: %w", item.Key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO episode_embeddings(rowid, embedding) VALUES (?, ?)`,
			existingRowID, embBlob,
		); err != nil {
			return fmt.Errorf("re-inserting embedding for %s: %w", item.Key, err)
		}
	case sql.ErrNoRows:
		result, err := tx.ExecContext(ctx,
			`INSERT INTO episodes(key, value, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			item.Key, valueJSON, metadataJSON, now, now,
		)
		if err != nil {
			return fmt.Errorf("inserting episode %s: %w", item.Key, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting rowid for %s: %w", item.Key, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO episode_embeddings(rowid, embedding) VALUES (?, ?)`,
			rowID, embBlob,
		); err != nil {
			return fmt.Errorf("inserting embedding for %s: %w", item.Key, err)
		}
	default:
		return fmt.Errorf("checking for existing episode %s: %w", item.Key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Retrieve returns the episode under key, or memory.ErrNotFound.
func (s *Store) Retrieve(ctx context.Context, key string) (*memory.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT value, metadata, created_at, updated_at FROM episodes WHERE key = ?
	`, key)

	var valueJSON, metadataJSON string
	var createdAt, updatedAt time.Time

	err := row.Scan(&valueJSON, &metadataJSON, &createdAt, &updatedAt)
	switch err {
	case nil:
	case sql.ErrNoRows:
		return nil, memory.ErrNotFound
	default:
		return nil, fmt.Errorf("reading episode %s: %w", key, err)
	}

	return decode(key, valueJSON, metadataJSON, createdAt, updatedAt)
}

// Update replaces the value and metadata of an existing episode and
// re-embeds it.
func (s *Store) Update(ctx context.Context, key string, value map[string]any, metadata map[string]string) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return memory.ErrNotFound
	}

	return s.Store(ctx, memory.Item{Key: key, Value: value, Metadata: metadata})
}

// Delete removes an episode and its embedding. Absent keys are a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var rowID int64
	err = tx.QueryRowContext(ctx, `SELECT rowid FROM episodes WHERE key = ?`, key).Scan(&rowID)
	switch err {
	case nil:
	case sql.ErrNoRows:
		return nil
	default:
		return fmt.Errorf("finding episode %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM episode_embeddings WHERE rowid = ?`, rowID); err != nil {
		return fmt.Errorf("deleting embedding for %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE rowid = ?`, rowID); err != nil {
		return fmt.Errorf("deleting episode %s: %w", key, err)
	}

	return tx.Commit()
}

// Exists reports whether an episode is present under key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM episodes WHERE key = ?`, key).Scan(&one)
	switch err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("checking episode %s: %w", key, err)
	}
}

// SearchSimilar embeds the query text and runs a KNN query, then applies the
// exact metadata filter. Overfetches the KNN stage so post-filtering can
// still fill n results.
func (s *Store) SearchSimilar(ctx context.Context, queryText string, n int, filter map[string]string) ([]memory.ScoredItem, error) {
	if n <= 0 {
		n = 10
	}

	embedding, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	k := n
	if len(filter) > 0 {
		k = n * 4
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			e.key,
			e.value,
			e.metadata,
			e.created_at,
			e.updated_at,
			ve.distance
		FROM episode_embeddings ve
		INNER JOIN episodes e ON e.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var results []memory.ScoredItem
	for rows.Next() {
		var key, valueJSON, metadataJSON string
		var createdAt, updatedAt time.Time
		var distance float64

		if err := rows.Scan(&key, &valueJSON, &metadataJSON, &createdAt, &updatedAt, &distance); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}

		item, err := decode(key, valueJSON, metadataJSON, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}

		if !memory.MatchesMetadata(*item, filter) {
			continue
		}

		results = append(results, memory.ScoredItem{
			Item: *item,
			// Convert distance to similarity score: lower distance = higher similarity
			Score: 1.0 / (1.0 + distance),
		})

		if len(results) == n {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	s.logger.Debug("searched episodic tier",
		zap.Int("results", len(results)),
	)

	return results, nil
}

// GetByMetadata returns up to limit episodes matching the filter exactly,
// newest first.
func (s *Store) GetByMetadata(ctx context.Context, filter map[string]string, limit int) ([]memory.Item, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, metadata, created_at, updated_at
		FROM episodes ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying episodes: %w", err)
	}
	defer rows.Close()

	var items []memory.Item
	for rows.Next() {
		var key, valueJSON, metadataJSON string
		var createdAt, updatedAt time.Time

		if err := rows.Scan(&key, &valueJSON, &metadataJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning episode: %w", err)
		}

		item, err := decode(key, valueJSON, metadataJSON, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}

		if !memory.MatchesMetadata(*item, filter) {
			continue
		}

		items = append(items, *item)
		if len(items) == limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating episodes: %w", err)
	}

	return items, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// embedItem derives the embedding text for an episode via memory.EmbedText.
func (s *Store) embedItem(ctx context.Context, item memory.Item) ([]float32, error) {
	text := memory.EmbedText(item)
	if text == "" {
		return nil, fmt.Errorf("episode %s has no embeddable text", item.Key)
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding episode %s: %w", item.Key, err)
	}
	return embedding, nil
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

func decode(key, valueJSON, metadataJSON string, createdAt, updatedAt time.Time) (*memory.Item, error) {
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

// Ensure Store implements memory.EpisodicTier
var _ memory.EpisodicTier = (*Store)(nil)
