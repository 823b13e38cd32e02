package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/minto/internal"
	"github.com/starford/minto/internal/models"
	pkgconfig "github.com/starford/minto/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func layoutFile(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if path := cmd.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	return internal.LayoutGraph(in, os.Stdout, models.Direction(cmd.String("direction")),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func exportDiagram(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("diagram id is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rel, err := internal.Export(ctx, id, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	fmt.Println(rel)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "minto",
		Usage:  "Pyramid-principle synthesis diagrams with layered layout, history, and live expansion",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and import watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:      "layout",
				Usage:     "Lay out a {nodes, edges} JSON file and print the result",
				ArgsUsage: "[file|-]",
				Action:    layoutFile,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "direction",
						Aliases: []string{"d"},
						Usage:   "Layout direction (TB or LR); defaults to layout.direction",
					},
				},
			},
			{
				Name:      "export",
				Usage:     "Write a stored diagram into the import directory",
				ArgsUsage: "<diagram-id>",
				Action:    exportDiagram,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
