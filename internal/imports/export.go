package imports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/minto/internal/checksum"
	"github.com/starford/minto/internal/history"
	"github.com/starford/minto/internal/models"
)

type frontmatter struct {
	Title string `yaml:"title,omitempty"`
	ID    string `yaml:"id"`
}

// Export writes entry to <id>.md in the import directory as a Markdown
// document with frontmatter, so re-importing it updates the same entry.
// It returns the relative path written.
func (im *Importer) Export(ctx context.Context, entry *models.HistoryEntry) (string, error) {
	data, err := Render(entry)
	if err != nil {
		return "", err
	}
	rel := entry.ID + ".md"
	if err := im.store.Write(rel, data); err != nil {
		return "", err
	}
	rec := history.ImportRecord{Path: rel, DiagramID: entry.ID, Checksum: checksum.Sum(data)}
	if err := im.index.RecordImport(ctx, rec); err != nil {
		return "", err
	}
	return rel, nil
}

// Render formats entry as an importable Markdown document.
func Render(entry *models.HistoryEntry) ([]byte, error) {
	fm, err := yaml.Marshal(frontmatter{Title: entry.Title, ID: entry.ID})
	if err != nil {
		return nil, fmt.Errorf("imports: render frontmatter: %w", err)
	}
	payload, err := json.MarshalIndent(entry.Graph(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("imports: render graph: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	if entry.Title != "" {
		fmt.Fprintf(&buf, "# %s\n\n", entry.Title)
	}
	buf.WriteString("```json\n")
	buf.Write(payload)
	buf.WriteString("\n```\n")
	return buf.Bytes(), nil
}
