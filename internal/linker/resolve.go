package linker

import (
	"slices"
	"strings"

	"github.com/starford/codewiki/internal/models"
)

// Filter drops mentions whose start falls in a protected markup context.
func Filter(body string, mentions []models.Mention) []models.Mention {
	out := make([]models.Mention, 0, len(mentions))
	for _, m := range mentions {
		if SkipOffset(body, m.Offset) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Resolve selects a non-overlapping subset of mentions. Candidates are
// walked by offset; on equal offsets lower priority wins, then the longer
// span, then the lexically smaller target. A candidate is accepted only
// when it starts at or after the end of the last accepted one.
func Resolve(mentions []models.Mention) []models.Mention {
	sorted := slices.Clone(mentions)
	slices.SortStableFunc(sorted, func(a, b models.Mention) int {
		if a.Offset != b.Offset {
			return a.Offset - b.Offset
		}
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		if a.Length != b.Length {
			return b.Length - a.Length
		}
		return strings.Compare(a.Target, b.Target)
	})

	var out []models.Mention
	lastEnd := -1
	for _, m := range sorted {
		if m.Offset < lastEnd {
			continue
		}
		out = append(out, m)
		lastEnd = m.End()
	}
	return out
}
