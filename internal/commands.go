package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/starford/codewiki/internal/mcpserver"
	"github.com/starford/codewiki/internal/pageservice"
)

// withRuntime bootstraps the corpus for a one-shot command. Logs go to
// stderr so stdout carries only the result.
func withRuntime(ctx context.Context, opts []Option, fn func(*runtime) error) error {
	app, err := newApplication(os.Stderr, opts...)
	if err != nil {
		return err
	}
	rt, err := bootstrap(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func (rt *runtime) printJSON(v any) error {
	enc := json.NewEncoder(rt.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// LinkOptions configures the link command.
type LinkOptions struct {
	DryRun   bool
	Progress bool
}

// Link runs one link pass over the corpus and prints its report.
func Link(ctx context.Context, lo LinkOptions, opts ...Option) error {
	return withRuntime(ctx, opts, func(rt *runtime) error {
		svcOpts := pageservice.LinkOptions{DryRun: lo.DryRun}

		var bar *progressbar.ProgressBar
		if lo.Progress {
			svcOpts.Progress = func(done, total int) {
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionSetDescription("Linking pages"),
						progressbar.OptionSetWidth(40),
						progressbar.OptionShowCount(),
						progressbar.OptionClearOnFinish(),
					)
				}
				_ = bar.Set(done)
			}
		}

		report, err := rt.svc.Link(ctx, svcOpts)
		if bar != nil {
			_ = bar.Finish()
		}
		if err != nil {
			return fmt.Errorf("link: %w", err)
		}
		if len(report.Failed) > 0 {
			rt.logger.Warn("some pages failed", slog.Int("failed", len(report.Failed)))
		}
		return rt.printJSON(report)
	})
}

// Health prints the graph health report.
func Health(ctx context.Context, opts ...Option) error {
	return withRuntime(ctx, opts, func(rt *runtime) error {
		report, err := rt.svc.Health(ctx)
		if err != nil {
			return fmt.Errorf("health: %w", err)
		}
		return rt.printJSON(report)
	})
}

// Search prints pages ranked against query.
func Search(ctx context.Context, query string, limit int, opts ...Option) error {
	return withRuntime(ctx, opts, func(rt *runtime) error {
		results, err := rt.svc.Search(ctx, query, limit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		return rt.printJSON(results)
	})
}

// TableOfContents prints the headings of one page.
func TableOfContents(ctx context.Context, path string, opts ...Option) error {
	return withRuntime(ctx, opts, func(rt *runtime) error {
		entries, err := rt.svc.TableOfContents(ctx, path)
		if err != nil {
			return fmt.Errorf("toc: %w", err)
		}
		return rt.printJSON(entries)
	})
}

// Related prints the scored related pages and grouped relations of a page.
func Related(ctx context.Context, path string, limit int, opts ...Option) error {
	return withRuntime(ctx, opts, func(rt *runtime) error {
		scored, err := rt.svc.Related(ctx, path, limit)
		if err != nil {
			return fmt.Errorf("related: %w", err)
		}
		view, err := rt.svc.Relations(ctx, path)
		if err != nil {
			return fmt.Errorf("related: %w", err)
		}
		return rt.printJSON(map[string]any{
			"path":      path,
			"related":   scored,
			"relations": view.Relations,
			"see_also":  view.SeeAlso,
		})
	})
}

// ServeMCP serves the MCP tools over stdio.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(os.Stderr, opts...)
	if err != nil {
		return err
	}
	rt, err := bootstrap(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := mcpserver.New(rt.svc, app.version)
	rt.logger.Info("MCP server listening on stdio")
	return srv.ServeStdio()
}
