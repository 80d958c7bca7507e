// Package relations derives typed "related page" edges for a page: the
// relations it declares, the pages its body mentions and the pages it shares
// a category or tags with.
package relations

import (
	"cmp"
	"slices"

	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/linker"
	"github.com/starford/codewiki/internal/models"
)

// MaxPerKind caps every relation group.
const MaxPerKind = 5

const (
	explicitWeight = 3
	categoryWeight = 1
	tagWeight      = 2
)

// Relations groups the edges of one page by kind.
type Relations struct {
	Explicit   []models.RelationEdge `json:"explicit"`
	Implicit   []models.RelationEdge `json:"implicit"`
	Structural []models.RelationEdge `json:"structural"`
}

// All returns the edges in render order.
func (r Relations) All() []models.RelationEdge {
	out := make([]models.RelationEdge, 0, len(r.Explicit)+len(r.Implicit)+len(r.Structural))
	out = append(out, r.Explicit...)
	out = append(out, r.Implicit...)
	return append(out, r.Structural...)
}

// Build computes the relations of page against the snapshot. idx must be
// built from the same snapshot.
func Build(snap *corpus.Snapshot, page *models.Page, idx *linker.TitleIndex) Relations {
	return Relations{
		Explicit:   explicit(snap, page),
		Implicit:   implicit(page, idx),
		Structural: structural(snap, page),
	}
}

// explicit keeps declared relations in order, dropping self, duplicate and
// unknown paths.
func explicit(snap *corpus.Snapshot, page *models.Page) []models.RelationEdge {
	out := []models.RelationEdge{}
	seen := make(map[string]struct{}, len(page.Related))
	for _, target := range page.Related {
		if len(out) == MaxPerKind {
			break
		}
		if target == page.Path || !snap.Has(target) {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, models.RelationEdge{
			Source: page.Path,
			Target: target,
			Kind:   models.RelationExplicit,
			Weight: explicitWeight,
		})
	}
	return out
}

// implicit ranks mentioned pages by mention count; ties keep the order of
// first appearance in the body. Mentions inside link targets are not
// counted, so a linked body counts the same as before linking.
func implicit(page *models.Page, idx *linker.TitleIndex) []models.RelationEdge {
	type tally struct {
		target string
		count  int
		first  int
	}
	byTarget := make(map[string]*tally)
	var candidates []models.Mention
	for _, m := range linker.Scan(page.Body, page.Path, idx) {
		if !linker.InLinkTarget(page.Body, m.Offset) {
			candidates = append(candidates, m)
		}
	}
	for _, m := range linker.Resolve(candidates) {
		t, ok := byTarget[m.Target]
		if !ok {
			t = &tally{target: m.Target, first: m.Offset}
			byTarget[m.Target] = t
		}
		t.count++
	}

	tallies := make([]*tally, 0, len(byTarget))
	for _, t := range byTarget {
		tallies = append(tallies, t)
	}
	slices.SortFunc(tallies, func(a, b *tally) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.first, b.first)
	})

	out := []models.RelationEdge{}
	for _, t := range tallies {
		if len(out) == MaxPerKind {
			break
		}
		out = append(out, models.RelationEdge{
			Source: page.Path,
			Target: t.target,
			Kind:   models.RelationImplicit,
			Weight: float64(t.count),
		})
	}
	return out
}

// structural scores every other page: +1 for the same category, +2 per
// shared tag.
func structural(snap *corpus.Snapshot, page *models.Page) []models.RelationEdge {
	tags := make(map[string]struct{}, len(page.Tags))
	for _, t := range page.Tags {
		tags[t] = struct{}{}
	}

	var out []models.RelationEdge
	for _, other := range snap.Pages() {
		if other.Path == page.Path {
			continue
		}
		weight := 0
		if other.Category == page.Category {
			weight += categoryWeight
		}
		for _, t := range other.Tags {
			if _, ok := tags[t]; ok {
				weight += tagWeight
			}
		}
		if weight == 0 {
			continue
		}
		out = append(out, models.RelationEdge{
			Source: page.Path,
			Target: other.Path,
			Kind:   models.RelationStructural,
			Weight: float64(weight),
		})
	}
	slices.SortStableFunc(out, func(a, b models.RelationEdge) int {
		if c := cmp.Compare(b.Weight, a.Weight); c != 0 {
			return c
		}
		return cmp.Compare(a.Target, b.Target)
	})
	if len(out) > MaxPerKind {
		out = out[:MaxPerKind]
	}
	if out == nil {
		out = []models.RelationEdge{}
	}
	return out
}

// MergeRelated returns the declared relations followed by implicit targets
// not yet declared, filling up to MaxPerKind. Declared entries are never
// dropped, so merging an already merged list is a no-op.
func MergeRelated(declared []string, implicit []models.RelationEdge) []string {
	out := make([]string, 0, MaxPerKind)
	seen := make(map[string]struct{}, len(declared)+len(implicit))
	for _, d := range declared {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	for _, e := range implicit {
		if len(out) >= MaxPerKind {
			break
		}
		if _, dup := seen[e.Target]; dup {
			continue
		}
		seen[e.Target] = struct{}{}
		out = append(out, e.Target)
	}
	return out
}

// PersistImplicit is a linker.RelatedFunc that folds mentioned pages into a
// page's declared relations.
func PersistImplicit(snap *corpus.Snapshot, idx *linker.TitleIndex, page *models.Page) []string {
	return MergeRelated(page.Related, implicit(page, idx))
}
