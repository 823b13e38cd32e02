package history

import (
	"context"
	"fmt"
)

// ImportChecksums returns every import record keyed by path.
func (db *DB) ImportChecksums(ctx context.Context) (map[string]ImportRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, diagram_id, checksum FROM imports`)
	if err != nil {
		return nil, fmt.Errorf("history: import checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]ImportRecord)
	for rows.Next() {
		var r ImportRecord
		if err := rows.Scan(&r.Path, &r.DiagramID, &r.Checksum); err != nil {
			return nil, err
		}
		out[r.Path] = r
	}
	return out, rows.Err()
}

// RecordImport inserts or replaces the record for rec.Path.
func (db *DB) RecordImport(ctx context.Context, rec ImportRecord) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO imports (path, diagram_id, checksum)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			diagram_id = excluded.diagram_id,
			checksum   = excluded.checksum
	`, rec.Path, rec.DiagramID, rec.Checksum)
	if err != nil {
		return fmt.Errorf("history: record import: %w", err)
	}
	return nil
}

// ForgetImport removes the record for path. The entry itself is kept.
func (db *DB) ForgetImport(ctx context.Context, path string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM imports WHERE path = ?`, path); err != nil {
		return fmt.Errorf("history: forget import: %w", err)
	}
	return nil
}
