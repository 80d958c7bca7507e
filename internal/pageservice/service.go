// Package pageservice coordinates the corpus repository, the link index and
// the analysis passes so that readers never observe a half-linked corpus.
package pageservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/codewiki/internal/apperr"
	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/health"
	"github.com/starford/codewiki/internal/index"
	"github.com/starford/codewiki/internal/linker"
	"github.com/starford/codewiki/internal/models"
	"github.com/starford/codewiki/internal/relations"
	"github.com/starford/codewiki/internal/search"
)

// Options configures the analysis and link passes.
type Options struct {
	RootPage       string
	URLPrefix      string
	Workers        int
	PersistRelated bool
}

// PageDetail is the full representation of a page.
type PageDetail struct {
	Path      string          `json:"path"`
	Title     string          `json:"title"`
	Category  models.Category `json:"category"`
	Tags      []string        `json:"tags"`
	Related   []string        `json:"related"`
	Updated   string          `json:"updated,omitempty"`
	Body      string          `json:"body"`
	Backlinks []string        `json:"backlinks"`
}

// RelationsView is the grouped relations of a page and their rendered
// "see also" section.
type RelationsView struct {
	relations.Relations
	SeeAlso string `json:"see_also"`
}

// LinkOptions configures one link pass.
type LinkOptions struct {
	DryRun   bool
	Progress func(done, total int)
}

// Service coordinates repository, index and analysis operations.
type Service struct {
	repo   corpus.Repository
	db     index.PageIndex
	syncer *index.Syncer
	opts   Options
	logger *slog.Logger

	// mu is held for writing during a link pass and for reading by every
	// snapshot-based analysis.
	mu      sync.RWMutex
	linking atomic.Bool
}

// NewService creates a new page service. syncer may be nil, in which case
// the index is not refreshed after link passes.
func NewService(repo corpus.Repository, db index.PageIndex, syncer *index.Syncer, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, db: db, syncer: syncer, opts: opts, logger: logger}
}

// Snapshot loads a consistent view of the whole corpus.
func (s *Service) Snapshot(ctx context.Context) (*corpus.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.LoadAll(ctx)
}

// GetPage reads a page and enriches it with backlinks from the index.
func (s *Service) GetPage(ctx context.Context, path string) (*PageDetail, error) {
	s.mu.RLock()
	p, err := s.repo.LoadOne(ctx, path)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(path)
	if err != nil {
		return nil, err
	}
	return &PageDetail{
		Path:      p.Path,
		Title:     p.Title,
		Category:  p.Category,
		Tags:      nonNilSlice(p.Tags),
		Related:   nonNilSlice(p.Related),
		Updated:   p.Updated,
		Body:      p.Body,
		Backlinks: nonNilSlice(bl),
	}, nil
}

// ListPages returns paginated page rows from the index.
func (s *Service) ListPages(_ context.Context, q index.ListQuery) ([]index.PageRow, int, error) {
	return s.db.ListPages(q)
}

// Backlinks returns all page paths that link to the given target.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	bl, err := s.db.Backlinks(target)
	return nonNilSlice(bl), err
}

// Graph returns all nodes and links for graph visualization.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphLink, error) {
	return s.db.Graph()
}

// Search ranks the corpus against query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return search.Rank(snap, query, search.Options{Limit: limit}), nil
}

// TableOfContents lists the headings of the page at path.
func (s *Service) TableOfContents(ctx context.Context, path string) ([]search.TOCEntry, error) {
	s.mu.RLock()
	p, err := s.repo.LoadOne(ctx, path)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return search.TableOfContents(p.Body), nil
}

// Related scores the other pages against the page at path.
func (s *Service) Related(ctx context.Context, path string, limit int) ([]search.RelatedPage, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return search.Related(snap, path, limit)
}

// Relations returns the explicit, implicit and structural relations of the
// page at path with the rendered "see also" section.
func (s *Service) Relations(ctx context.Context, path string) (*RelationsView, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := snap.Get(path)
	if !ok {
		return nil, fmt.Errorf("pageservice: relations %s: %w", path, apperr.ErrNotFound)
	}
	r := relations.Build(snap, p, linker.NewTitleIndex(snap.Pages()))
	return &RelationsView{Relations: r, SeeAlso: relations.RenderSeeAlso(snap, path, r)}, nil
}

// Health analyzes the link graph of the whole corpus.
func (s *Service) Health(ctx context.Context) (*health.Report, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return health.Analyze(snap, health.Options{RootPage: s.opts.RootPage, URLPrefix: s.opts.URLPrefix}), nil
}

// Link runs a link pass over the whole corpus. Only one pass may run at a
// time; a concurrent call fails with apperr.ErrBusy. Analyses wait for the
// pass to finish.
func (s *Service) Link(ctx context.Context, lo LinkOptions) (*linker.BatchReport, error) {
	if !s.linking.CompareAndSwap(false, true) {
		return nil, apperr.ErrBusy
	}
	defer s.linking.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	opts := linker.BatchOptions{
		Workers:  s.opts.Workers,
		DryRun:   lo.DryRun,
		Progress: lo.Progress,
		Logger:   s.logger,
	}
	if s.opts.PersistRelated {
		opts.Related = relations.PersistImplicit
	}
	report, err := linker.RunBatch(ctx, s.repo, opts)
	if err != nil {
		return nil, err
	}

	if !lo.DryRun && len(report.Changed) > 0 && s.syncer != nil {
		if _, err := s.syncer.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("pageservice: index refresh failed", slog.String("error", err.Error()))
		}
	}
	return report, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
