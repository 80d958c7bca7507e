package linker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/models"
)

// RelatedFunc computes the declared relations a page should carry after
// linking. The snapshot and title index are shared read-only state.
type RelatedFunc func(snap *corpus.Snapshot, idx *TitleIndex, page *models.Page) []string

// BatchOptions configures RunBatch.
type BatchOptions struct {
	// Workers bounds page-level parallelism. Zero means GOMAXPROCS.
	Workers int
	// DryRun computes changes without saving pages.
	DryRun bool
	// Related, when set, rewrites each page's declared relations.
	Related RelatedFunc
	// Progress is called after each page with the completed count.
	Progress func(done, total int)
	Logger   *slog.Logger
}

// PageChange describes one page that was (or would be) rewritten.
type PageChange struct {
	Path           string `json:"path"`
	LinksAdded     int    `json:"links_added"`
	RelatedUpdated bool   `json:"related_updated,omitempty"`
}

// PageError is a per-page failure that did not stop the batch.
type PageError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BatchReport summarizes a linking run.
type BatchReport struct {
	RunID      string        `json:"run_id"`
	DryRun     bool          `json:"dry_run"`
	Pages      int           `json:"pages"`
	LinksAdded int           `json:"links_added"`
	Changed    []PageChange  `json:"changed"`
	Failed     []PageError   `json:"failed"`
	Duplicates []Duplicate   `json:"duplicates,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// RunBatch links the whole corpus in two phases. The corpus is loaded and
// the title index built once; pages are then linked concurrently against
// that shared, read-only state. A failing page is recorded in the report
// and does not abort the others. Only context cancellation aborts the run.
func RunBatch(ctx context.Context, repo corpus.Repository, opts BatchOptions) (*BatchReport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	report := &BatchReport{
		RunID:   uuid.NewString(),
		DryRun:  opts.DryRun,
		Changed: []PageChange{},
		Failed:  []PageError{},
	}

	snap, err := repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("linker: load corpus: %w", err)
	}
	idx := NewTitleIndex(snap.Pages())
	report.Pages = snap.Len()
	report.Duplicates = idx.Duplicates()
	for _, d := range report.Duplicates {
		logger.Warn("linker: duplicate title",
			slog.String("title", d.Title),
			slog.String("kept", d.Kept),
			slog.String("dropped", d.Dropped))
	}

	var (
		mu   sync.Mutex
		done int
	)
	total := snap.Len()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, page := range snap.Pages() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			change, err := linkPage(gctx, repo, snap, idx, page, opts)

			mu.Lock()
			defer mu.Unlock()
			done++
			switch {
			case err != nil:
				logger.Warn("linker: page failed", slog.String("path", page.Path), slog.String("error", err.Error()))
				report.Failed = append(report.Failed, PageError{Path: page.Path, Error: err.Error()})
			case change != nil:
				logger.Debug("linker: page linked", slog.String("path", page.Path), slog.Int("links", change.LinksAdded))
				report.Changed = append(report.Changed, *change)
				report.LinksAdded += change.LinksAdded
			}
			if opts.Progress != nil {
				opts.Progress(done, total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("linker: run %s: %w", report.RunID, err)
	}

	slices.SortFunc(report.Changed, func(a, b PageChange) int { return strings.Compare(a.Path, b.Path) })
	slices.SortFunc(report.Failed, func(a, b PageError) int { return strings.Compare(a.Path, b.Path) })
	report.Duration = time.Since(start)

	logger.Info("linker: batch finished",
		slog.String("run_id", report.RunID),
		slog.Bool("dry_run", report.DryRun),
		slog.Int("pages", report.Pages),
		slog.Int("changed", len(report.Changed)),
		slog.Int("links_added", report.LinksAdded),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// linkPage links one page. It returns nil when nothing changed.
func linkPage(ctx context.Context, repo corpus.Repository, snap *corpus.Snapshot, idx *TitleIndex, page *models.Page, opts BatchOptions) (*PageChange, error) {
	body, mentions := LinkBody(page.Body, page.Path, idx)

	updated := page.Clone()
	updated.Body = body

	relatedChanged := false
	if opts.Related != nil {
		related := opts.Related(snap, idx, updated)
		if !slices.Equal(related, page.Related) {
			updated.Related = related
			relatedChanged = true
		}
	}
	if len(mentions) == 0 && !relatedChanged {
		return nil, nil
	}
	if !opts.DryRun {
		if err := repo.SaveOne(ctx, updated); err != nil {
			return nil, err
		}
	}
	return &PageChange{Path: page.Path, LinksAdded: len(mentions), RelatedUpdated: relatedChanged}, nil
}
