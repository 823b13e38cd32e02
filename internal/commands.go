package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/starford/minto/internal/layout"
	"github.com/starford/minto/internal/mcpserver"
	"github.com/starford/minto/internal/metrics"
	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/schema"
)

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
// Logs must not go to stdout, which carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()

	svc, db, err := app.services(logger, nil)
	if err != nil {
		return err
	}
	defer db.Close()
	defer svc.Close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).Serve(ctx, os.Stdin, os.Stdout)
}

// LayoutGraph reads a {nodes, edges} document from in, lays it out and
// writes the result to out as indented JSON. It needs no history store.
func LayoutGraph(in io.Reader, out io.Writer, dir models.Direction, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = app.config.Layout.DefaultDirection()
	}

	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read graph: %w", err)
	}
	g, err := schema.Decode(raw)
	if err != nil {
		return err
	}
	started := time.Now()
	laid, err := layout.New(app.config.Layout.Options()).Layout(g, dir)
	if err != nil {
		return err
	}
	metrics.ObserveLayout(string(dir), len(laid.Nodes), started)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(laid)
}

// Export writes a stored diagram into the import directory as a Markdown
// document and returns its path relative to that directory.
func Export(ctx context.Context, id string, opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	if !app.config.Imports.Enabled {
		return "", fmt.Errorf("imports are disabled; set imports.enabled to export")
	}
	logger := app.logger()

	svc, db, err := app.services(logger, nil)
	if err != nil {
		return "", err
	}
	defer db.Close()
	defer svc.Close()

	entry, err := svc.Get(ctx, id, "")
	if err != nil {
		return "", err
	}
	importer, _, err := app.importer(svc, db, logger)
	if err != nil {
		return "", err
	}
	rel, err := importer.Export(ctx, entry)
	if err != nil {
		return "", err
	}
	logger.Info("diagram exported", slog.String("id", id), slog.String("path", rel))
	return rel, nil
}
