//go:build sqlite_fts5

package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/minto/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS diagrams_fts USING fts5(
			id UNINDEXED,
			title,
			labels,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id, title, labels string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM diagrams_fts WHERE id = ?`, id)
	_, err := tx.ExecContext(ctx, `INSERT INTO diagrams_fts (id, title, labels) VALUES (?, ?, ?)`,
		id, title, labels)
	if err != nil {
		return fmt.Errorf("history: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, id string) {
	_, _ = tx.ExecContext(ctx, `DELETE FROM diagrams_fts WHERE id = ?`, id)
}

func ftsClear(ctx context.Context, tx *sql.Tx) {
	_, _ = tx.ExecContext(ctx, `DELETE FROM diagrams_fts`)
}

// Search performs an FTS5 full-text search over titles and labels.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.HistorySummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT d.id, d.title, d.timestamp
		FROM diagrams_fts f
		JOIN diagrams d ON d.id = f.id
		WHERE diagrams_fts MATCH ?
		ORDER BY d.timestamp DESC, d.rowid DESC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}
	return scanSummaries(rows)
}
