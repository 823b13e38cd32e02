package history

import (
	"context"

	"github.com/starford/minto/internal/models"
)

// Store persists diagram snapshots. Writes are last-write-wins per id; no
// operation spans more than one entry atomically.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with fakes.
type Store interface {
	// Put stores a new entry, or overwrites the entry with the same id.
	// An empty id is replaced by a random UUID.
	Put(ctx context.Context, id, title string, g models.Graph) (models.HistoryEntry, error)
	// Get returns the entry or an apperr.ErrNotFound error.
	Get(ctx context.Context, id string) (*models.HistoryEntry, error)
	// Update replaces the nodes and edges of an existing entry. Title and
	// timestamp are kept.
	Update(ctx context.Context, id string, g models.Graph) error
	// List returns every entry, newest first.
	List(ctx context.Context) ([]models.HistorySummary, error)
	// Search returns entries whose title or labels match query, newest first.
	Search(ctx context.Context, query string, limit int) ([]models.HistorySummary, error)
	// Delete removes one entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, id string) error
	// Clear removes every entry.
	Clear(ctx context.Context) error
	Close() error
}

// ImportIndex tracks which entries were loaded from files in the import
// directory, keyed by relative path.
type ImportIndex interface {
	ImportChecksums(ctx context.Context) (map[string]ImportRecord, error)
	RecordImport(ctx context.Context, rec ImportRecord) error
	ForgetImport(ctx context.Context, path string) error
}

// ImportRecord links an import file to the entry it produced.
type ImportRecord struct {
	Path      string
	DiagramID string
	Checksum  string
}

// Verify *DB satisfies both interfaces at compile time.
var (
	_ Store       = (*DB)(nil)
	_ ImportIndex = (*DB)(nil)
)
