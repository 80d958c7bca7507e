package search

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/starford/codewiki/internal/apperr"
	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/linker"
	"github.com/starford/codewiki/internal/models"
)

// DefaultRelatedLimit is the default number of related pages.
const DefaultRelatedLimit = 10

const (
	relatedExplicit = 50
	relatedCategory = 20
	relatedTag      = 10
	relatedMention  = 15
)

// RelatedPage is a page scored against another page.
type RelatedPage struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Score int    `json:"score"`
}

// Related scores every other page against the page at path and returns the
// best matches.
func Related(snap *corpus.Snapshot, path string, limit int) ([]RelatedPage, error) {
	src, ok := snap.Get(path)
	if !ok {
		return nil, fmt.Errorf("search: related %s: %w", path, apperr.ErrNotFound)
	}
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}

	out := []RelatedPage{}
	for _, other := range snap.Pages() {
		if other.Path == src.Path {
			continue
		}
		if s := pairScore(src, other); s > 0 {
			out = append(out, RelatedPage{Path: other.Path, Title: other.Title, Score: s})
		}
	}
	slices.SortFunc(out, func(a, b RelatedPage) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return out[:min(limit, len(out))], nil
}

func pairScore(a, b *models.Page) int {
	s := 0
	if slices.Contains(a.Related, b.Path) || slices.Contains(b.Related, a.Path) {
		s += relatedExplicit
	}
	if a.Category == b.Category {
		s += relatedCategory
	}
	for _, t := range a.Tags {
		if slices.Contains(b.Tags, t) {
			s += relatedTag
		}
	}
	if linker.MentionsTitle(a.Body, b.Title) {
		s += relatedMention
	}
	if linker.MentionsTitle(b.Body, a.Title) {
		s += relatedMention
	}
	return s
}
