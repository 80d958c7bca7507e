package relations

import (
	"strings"

	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/linker"
	"github.com/starford/codewiki/internal/models"
)

var groupHeadings = map[models.RelationKind]string{
	models.RelationExplicit:   "Context",
	models.RelationImplicit:   "Mentioned",
	models.RelationStructural: "Similar",
}

// RenderSeeAlso renders the relations of source as a Markdown "Related
// Pages" section. Groups render in a fixed order, empty groups are skipped
// and a page listed in an earlier group is not repeated. It returns "" when
// there is nothing to list.
func RenderSeeAlso(snap *corpus.Snapshot, source string, r Relations) string {
	listed := make(map[string]struct{})

	var b strings.Builder
	var kind models.RelationKind
	var items []string
	flush := func() {
		if len(items) == 0 {
			return
		}
		if b.Len() == 0 {
			b.WriteString("## Related Pages\n")
		}
		b.WriteString("\n### " + groupHeadings[kind] + "\n\n")
		b.WriteString(strings.Join(items, "\n"))
		b.WriteString("\n")
		items = nil
	}
	for _, e := range r.All() {
		if e.Kind != kind {
			flush()
			kind = e.Kind
		}
		if _, dup := listed[e.Target]; dup || e.Target == source {
			continue
		}
		listed[e.Target] = struct{}{}
		items = append(items, "- ["+titleOf(snap, e.Target)+"]("+linker.RelativePath(source, e.Target)+")")
	}
	flush()
	return b.String()
}

func titleOf(snap *corpus.Snapshot, path string) string {
	if p, ok := snap.Get(path); ok && p.Title != "" {
		return p.Title
	}
	return path
}
