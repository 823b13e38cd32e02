// Package imports loads diagram files from a watched directory into history.
//
// A file is either a JSON graph ({nodes, edges} or a full synthesis with
// reasoningSteps) or a Markdown document whose YAML frontmatter may set
// title, id and direction and whose body carries the JSON payload. Each file
// maps to one history entry: the frontmatter id when given, otherwise a
// stable id derived from the file path, so editing a file updates the same
// diagram. Removing a file forgets the mapping but keeps the entry.
package imports

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/minto/internal/checksum"
	"github.com/starford/minto/internal/history"
	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/parser"
	"github.com/starford/minto/internal/schema"
	"github.com/starford/minto/internal/storage"
)

// Saver lays out and stores a diagram under a fixed id.
type Saver interface {
	Save(ctx context.Context, id, title string, g models.Graph, dir models.Direction) (*models.HistoryEntry, error)
}

// EventCallback is called after a watcher-driven import change.
// kind is one of "imported", "forgotten".
type EventCallback func(kind, path, diagramID string)

// Importer keeps history in step with the import directory.
type Importer struct {
	saver  Saver
	index  history.ImportIndex
	store  storage.Provider
	logger *slog.Logger
}

// New creates an Importer.
func New(saver Saver, index history.ImportIndex, store storage.Provider, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{saver: saver, index: index, store: store, logger: logger}
}

// DiagramID returns the history id a file without a frontmatter id maps to.
func DiagramID(relPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("minto-import:"+relPath)).String()
}

// Sync walks the import directory and brings history up to date:
//   - new/changed files are parsed and saved
//   - files removed from disk are forgotten
func (im *Importer) Sync(ctx context.Context) error {
	metas, err := im.store.List("")
	if err != nil {
		return err
	}
	records, err := im.index.ImportChecksums(ctx)
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if rec, ok := records[m.Path]; ok && rec.Checksum == m.Checksum {
			continue
		}
		id, err := im.ImportFile(ctx, m.Path)
		if err != nil {
			im.logger.Warn("sync: import failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		im.logger.Debug("sync: imported", slog.String("path", m.Path), slog.String("id", id))
	}

	// Forget records whose files are gone.
	for p := range records {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := im.index.ForgetImport(ctx, p); err != nil {
			im.logger.Warn("sync: forget failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			im.logger.Debug("sync: forgot stale", slog.String("path", p))
		}
	}
	return nil
}

// ImportFile reads, validates and saves one file and records its checksum.
// It returns the id of the history entry.
func (im *Importer) ImportFile(ctx context.Context, relPath string) (string, error) {
	data, err := im.store.Read(relPath)
	if err != nil {
		return "", err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return "", err
	}
	g, err := decodeGraph(res.Payload)
	if err != nil {
		return "", err
	}

	id := res.ID
	if id == "" {
		id = DiagramID(relPath)
	}
	title := res.Title
	if title == "" {
		base := path.Base(relPath)
		title = strings.TrimSuffix(base, path.Ext(base))
	}

	entry, err := im.saver.Save(ctx, id, title, g, models.Direction(res.Direction))
	if err != nil {
		return "", err
	}
	rec := history.ImportRecord{Path: relPath, DiagramID: entry.ID, Checksum: checksum.Sum(data)}
	if err := im.index.RecordImport(ctx, rec); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// importChanged imports relPath unless its content matches the recorded
// checksum. It reports whether an import happened.
func (im *Importer) importChanged(ctx context.Context, relPath string) (string, bool, error) {
	data, err := im.store.Read(relPath)
	if err != nil {
		return "", false, err
	}
	records, err := im.index.ImportChecksums(ctx)
	if err != nil {
		return "", false, err
	}
	if rec, ok := records[relPath]; ok && rec.Checksum == checksum.Sum(data) {
		return rec.DiagramID, false, nil
	}
	id, err := im.ImportFile(ctx, relPath)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Forget drops the record for a removed file.
func (im *Importer) Forget(ctx context.Context, relPath string) error {
	return im.index.ForgetImport(ctx, relPath)
}

// decodeGraph accepts a bare graph or a full synthesis payload.
func decodeGraph(payload []byte) (models.Graph, error) {
	g, err := schema.Decode(payload)
	if err == nil {
		return g, nil
	}
	if syn, synErr := schema.DecodeSynthesis(payload); synErr == nil {
		return syn.Graph(), nil
	}
	return models.Graph{}, err
}
