//go:build !sqlite_fts5

package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/minto/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the diagrams.labels column.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _, _ string) error {
	// Labels are already stored in the diagrams table.
	return nil
}

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) {}

func ftsClear(_ context.Context, _ *sql.Tx) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.HistorySummary, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, timestamp
		FROM diagrams
		WHERE title LIKE ? OR labels LIKE ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}
	return scanSummaries(rows)
}
