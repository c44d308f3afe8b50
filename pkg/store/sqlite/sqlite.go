// Package sqlite provides a SQLite-backed proposal store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillworks/quill/pkg/store"
)

// Driver implements store.Driver using SQLite.
type Driver struct {
	db *sql.DB
}

// NewDriver creates a new SQLite-backed proposal store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes SetStageOutput's read-modify-write and keeps
	// ":memory:" databases coherent across pooled connections.
	db.SetMaxOpenConns(1)

	d := &Driver{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return d, nil
}

func (d *Driver) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS proposals (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		stage_outputs TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Put stores a proposal, replacing any existing record with the same ID.
func (d *Driver) Put(ctx context.Context, p *store.Proposal) error {
	if p == nil {
		return fmt.Errorf("cannot store nil proposal")
	}
	if p.ID == "" {
		return fmt.Errorf("proposal ID is required")
	}

	outputs, err := encodeOutputs(p.StageOutputs)
	if err != nil {
		return fmt.Errorf("encoding stage outputs of %s: %w", p.ID, err)
	}

	now := time.Now().UTC()
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO proposals (id, source_text, stage_outputs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_text = excluded.source_text,
			stage_outputs = excluded.stage_outputs,
			updated_at = excluded.updated_at
	`, p.ID, p.SourceText, outputs, now, now)
	if err != nil {
		return fmt.Errorf("storing proposal %s: %w", p.ID, err)
	}

	return nil
}

// Get retrieves a proposal by ID.
func (d *Driver) Get(ctx context.Context, id string) (*store.Proposal, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, source_text, stage_outputs, created_at, updated_at
		FROM proposals WHERE id = ?
	`, id)

	p, err := scanProposal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, store.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading proposal %s: %w", id, err)
	}

	return p, nil
}

// List returns all proposals ordered by creation time, oldest first.
func (d *Driver) List(ctx context.Context) ([]*store.Proposal, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, source_text, stage_outputs, created_at, updated_at
		FROM proposals ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*store.Proposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning proposal: %w", err)
		}
		proposals = append(proposals, p)
	}

	return proposals, rows.Err()
}

// SetStageOutput records the JSON output of one completed stage. The
// single-connection pool plus the transaction serialize concurrent stage
// completions on the same proposal.
func (d *Driver) SetStageOutput(ctx context.Context, id, stage string, output json.RawMessage) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var outputsJSON string
	err = tx.QueryRowContext(ctx, `SELECT stage_outputs FROM proposals WHERE id = ?`, id).
		Scan(&outputsJSON)
	if err == sql.ErrNoRows {
		return store.NotFoundError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("reading proposal %s: %w", id, err)
	}

	outputs := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(outputsJSON), &outputs); err != nil {
		return fmt.Errorf("decoding stage outputs of %s: %w", id, err)
	}
	outputs[stage] = output

	encoded, err := encodeOutputs(outputs)
	if err != nil {
		return fmt.Errorf("encoding stage outputs of %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE proposals SET stage_outputs = ?, updated_at = ? WHERE id = ?
	`, encoded, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating proposal %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing stage output of %s: %w", id, err)
	}

	return nil
}

// Delete removes a proposal. Deleting an absent ID is a no-op.
func (d *Driver) Delete(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM proposals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting proposal %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func encodeOutputs(outputs map[string]json.RawMessage) (string, error) {
	if outputs == nil {
		outputs = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(outputs)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func scanProposal(scan func(dest ...any) error) (*store.Proposal, error) {
	var p store.Proposal
	var outputsJSON string

	if err := scan(&p.ID, &p.SourceText, &outputsJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(outputsJSON), &p.StageOutputs); err != nil {
		return nil, fmt.Errorf("decoding stage outputs: %w", err)
	}

	return &p, nil
}

// Ensure Driver implements store.Driver
var _ store.Driver = (*Driver)(nil)
