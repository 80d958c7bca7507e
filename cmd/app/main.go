package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/codewiki/internal"
	pkgconfig "github.com/starford/codewiki/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(configPath, "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.String("corpus"); dir != "" {
		cfg.Corpus.Path = dir
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func link(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Link(ctx, internal.LinkOptions{
		DryRun:   cmd.Bool("dry-run"),
		Progress: !cmd.Bool("quiet"),
	}, opts...)
}

func health(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Health(ctx, opts...)
}

func search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.Args().First()
	if query == "" {
		return fmt.Errorf("search: query argument is required")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Search(ctx, query, int(cmd.Int("limit")), opts...)
}

func toc(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("toc: page path argument is required")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.TableOfContents(ctx, path, opts...)
}

func related(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("related: page path argument is required")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Related(ctx, path, int(cmd.Int("limit")), opts...)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func limitFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of results",
		Value: 10,
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "codewiki",
		Usage:   "Cross-link, index and analyze a Markdown documentation corpus",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "corpus",
				Aliases: []string{"d"},
				Usage:   "Corpus directory (overrides corpus.path)",
				Sources: cli.EnvVars("CODEWIKI_CORPUS"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and watch the corpus",
				Action: serve,
			},
			{
				Name:  "link",
				Usage: "Rewrite title mentions into links across the corpus",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Report changes without writing"},
					&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Hide the progress bar"},
				},
				Action: link,
			},
			{
				Name:   "health",
				Usage:  "Print the graph health report",
				Action: health,
			},
			{
				Name:      "search",
				Usage:     "Rank pages against a query",
				ArgsUsage: "<query>",
				Flags:     []cli.Flag{limitFlag()},
				Action:    search,
			},
			{
				Name:      "toc",
				Usage:     "Print the table of contents of a page",
				ArgsUsage: "<path>",
				Action:    toc,
			},
			{
				Name:      "related",
				Usage:     "Print pages related to a page",
				ArgsUsage: "<path>",
				Flags:     []cli.Flag{limitFlag()},
				Action:    related,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
