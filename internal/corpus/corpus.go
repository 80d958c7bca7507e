// Package corpus loads the documentation corpus as an immutable snapshot and
// persists rewritten pages.
package corpus

import (
	"context"
	"sort"

	"github.com/starford/codewiki/internal/models"
)

// Repository is the corpus accessor used by every analysis and link pass.
type Repository interface {
	// LoadAll reads every page. Unreadable pages are skipped.
	LoadAll(ctx context.Context) (*Snapshot, error)
	// LoadOne reads a single page by corpus path.
	LoadOne(ctx context.Context, path string) (*models.Page, error)
	// SaveOne persists the page. Writes to the same path are serialized.
	SaveOne(ctx context.Context, page *models.Page) error
}

// Snapshot is a read-only view of the corpus taken at one point in time.
// Pages are ordered by path. Callers must not mutate the returned pages;
// clone them first.
type Snapshot struct {
	pages  []*models.Page
	byPath map[string]*models.Page
}

// NewSnapshot builds a snapshot from pages. When two pages share a path the
// first one wins.
func NewSnapshot(pages []*models.Page) *Snapshot {
	s := &Snapshot{byPath: make(map[string]*models.Page, len(pages))}
	for _, p := range pages {
		if p == nil {
			continue
		}
		if _, dup := s.byPath[p.Path]; dup {
			continue
		}
		s.byPath[p.Path] = p
		s.pages = append(s.pages, p)
	}
	sort.SliceStable(s.pages, func(i, j int) bool {
		return s.pages[i].Path < s.pages[j].Path
	})
	return s
}

// Pages returns all pages ordered by path.
func (s *Snapshot) Pages() []*models.Page {
	return s.pages
}

// Get returns the page at path.
func (s *Snapshot) Get(path string) (*models.Page, bool) {
	p, ok := s.byPath[path]
	return p, ok
}

// Has reports whether a page exists at path.
func (s *Snapshot) Has(path string) bool {
	_, ok := s.byPath[path]
	return ok
}

// Len returns the number of pages.
func (s *Snapshot) Len() int {
	return len(s.pages)
}
