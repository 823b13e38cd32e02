package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/models"
)

// Put inserts or replaces an entry and its search document within a
// transaction.
func (db *DB) Put(ctx context.Context, id, title string, g models.Graph) (models.HistoryEntry, error) {
	if id == "" {
		id = uuid.NewString()
	}
	nodes, edges, err := encodeGraph(g)
	if err != nil {
		return models.HistoryEntry{}, err
	}
	entry := models.HistoryEntry{
		ID:        id,
		Title:     title,
		Nodes:     nonNil(g.Nodes),
		Edges:     nonNil(g.Edges),
		Timestamp: db.now().UnixMilli(),
	}
	labels := joinLabels(g)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO diagrams (id, title, nodes, edges, labels, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title     = excluded.title,
			nodes     = excluded.nodes,
			edges     = excluded.edges,
			labels    = excluded.labels,
			timestamp = excluded.timestamp
	`, entry.ID, entry.Title, nodes, edges, labels, entry.Timestamp)
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("history: put: %w", err)
	}
	if err := ftsUpsert(ctx, tx, entry.ID, entry.Title, labels); err != nil {
		return models.HistoryEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.HistoryEntry{}, fmt.Errorf("history: commit: %w", err)
	}
	return entry, nil
}

// Get returns a single entry.
func (db *DB) Get(ctx context.Context, id string) (*models.HistoryEntry, error) {
	var (
		e            models.HistoryEntry
		nodes, edges string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, nodes, edges, timestamp FROM diagrams WHERE id = ?`, id,
	).Scan(&e.ID, &e.Title, &nodes, &edges, &e.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.ErrNotFound, id, "diagram %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get: %w", err)
	}
	if err := json.Unmarshal([]byte(nodes), &e.Nodes); err != nil {
		return nil, fmt.Errorf("history: decode nodes of %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(edges), &e.Edges); err != nil {
		return nil, fmt.Errorf("history: decode edges of %q: %w", id, err)
	}
	e.Nodes, e.Edges = nonNil(e.Nodes), nonNil(e.Edges)
	return &e, nil
}

// Update replaces the graph of an existing entry.
func (db *DB) Update(ctx context.Context, id string, g models.Graph) error {
	nodes, edges, err := encodeGraph(g)
	if err != nil {
		return err
	}
	labels := joinLabels(g)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE diagrams SET nodes = ?, edges = ?, labels = ? WHERE id = ?`,
		nodes, edges, labels, id)
	if err != nil {
		return fmt.Errorf("history: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.ErrNotFound, id, "diagram %q not found", id)
	}

	var title string
	if err := tx.QueryRowContext(ctx, `SELECT title FROM diagrams WHERE id = ?`, id).Scan(&title); err != nil {
		return fmt.Errorf("history: update: %w", err)
	}
	if err := ftsUpsert(ctx, tx, id, title, labels); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns all entries, newest first. Entries with equal timestamps are
// ordered by insertion, newest first.
func (db *DB) List(ctx context.Context) ([]models.HistorySummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, timestamp FROM diagrams ORDER BY timestamp DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return scanSummaries(rows)
}

// Delete removes an entry, its search document and any import record
// pointing at it.
func (db *DB) Delete(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(ctx, tx, id)
	_, _ = tx.ExecContext(ctx, `DELETE FROM imports WHERE diagram_id = ?`, id)
	if _, err := tx.ExecContext(ctx, `DELETE FROM diagrams WHERE id = ?`, id); err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	return tx.Commit()
}

// Clear removes every entry.
func (db *DB) Clear(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsClear(ctx, tx)
	for _, stmt := range []string{`DELETE FROM imports`, `DELETE FROM diagrams`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: clear: %w", err)
		}
	}
	return tx.Commit()
}

func scanSummaries(rows *sql.Rows) ([]models.HistorySummary, error) {
	defer rows.Close()
	out := []models.HistorySummary{}
	for rows.Next() {
		var s models.HistorySummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func encodeGraph(g models.Graph) (string, string, error) {
	nodes, err := json.Marshal(nonNil(g.Nodes))
	if err != nil {
		return "", "", fmt.Errorf("history: encode nodes: %w", err)
	}
	edges, err := json.Marshal(nonNil(g.Edges))
	if err != nil {
		return "", "", fmt.Errorf("history: encode edges: %w", err)
	}
	return string(nodes), string(edges), nil
}

func joinLabels(g models.Graph) string {
	labels := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Data.Label != "" {
			labels = append(labels, n.Data.Label)
		}
	}
	return strings.Join(labels, "\n")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
