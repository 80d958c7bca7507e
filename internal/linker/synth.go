package linker

import (
	"path"
	"slices"
	"strings"

	"github.com/starford/codewiki/internal/models"
)

// RelativePath returns the link target from source to target. Pages in the
// same directory link by file name; otherwise the link climbs to the corpus
// root and descends the full target path.
func RelativePath(source, target string) string {
	srcDir := path.Dir(source)
	if srcDir == path.Dir(target) {
		return path.Base(target)
	}
	depth := 0
	if srcDir != "." {
		depth = strings.Count(srcDir, "/") + 1
	}
	return strings.Repeat("../", depth) + target
}

// Synthesize rewrites each resolved mention into a Markdown link, keeping
// the matched text's casing. Mentions must not overlap; they are applied
// from the end of the body so earlier offsets stay valid.
func Synthesize(body string, mentions []models.Mention) string {
	ordered := slices.Clone(mentions)
	slices.SortFunc(ordered, func(a, b models.Mention) int { return b.Offset - a.Offset })

	for _, m := range ordered {
		if m.Offset < 0 || m.End() > len(body) {
			continue
		}
		link := "[" + m.Text + "](" + RelativePath(m.Source, m.Target) + ")"
		if m.Surface == models.SurfaceEmphasized {
			link = "**" + link + "**"
		}
		body = body[:m.Offset] + link + body[m.End():]
	}
	return body
}
