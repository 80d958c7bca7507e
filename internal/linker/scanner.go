// Package linker discovers mentions of page titles in other pages' bodies
// and rewrites them into relative Markdown links.
package linker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/codewiki/internal/models"
)

// MinTitleLength is the shortest title (in runes) that is ever scanned.
const MinTitleLength = 4

// Mention priorities. Lower wins on overlap.
const (
	PriorityEmphasized = 1
	PriorityPlain      = 2
)

// titleEntry is one scannable title.
type titleEntry struct {
	Title string
	Path  string

	plain      *regexp.Regexp
	emphasized *regexp.Regexp
}

// Duplicate records a title claimed by more than one page.
type Duplicate struct {
	Title   string
	Kept    string
	Dropped string
}

// TitleIndex is the immutable title lookup shared by every page scan of a
// batch. It must be built from the whole corpus before any scanning starts.
type TitleIndex struct {
	entries    []titleEntry
	byPath     map[string]int
	duplicates []Duplicate
}

// NewTitleIndex indexes the titles of pages in the given order. Titles
// shorter than MinTitleLength are skipped; for duplicate titles
// (case-insensitive) the first page wins.
func NewTitleIndex(pages []*models.Page) *TitleIndex {
	idx := &TitleIndex{byPath: make(map[string]int, len(pages))}
	owner := make(map[string]string, len(pages))

	for _, p := range pages {
		title := strings.TrimSpace(p.Title)
		if utf8.RuneCountInString(title) < MinTitleLength {
			continue
		}
		key := strings.ToLower(title)
		if kept, dup := owner[key]; dup {
			idx.duplicates = append(idx.duplicates, Duplicate{Title: title, Kept: kept, Dropped: p.Path})
			continue
		}
		owner[key] = p.Path

		quoted := regexp.QuoteMeta(title)
		idx.byPath[p.Path] = len(idx.entries)
		idx.entries = append(idx.entries, titleEntry{
			Title:      title,
			Path:       p.Path,
			plain:      regexp.MustCompile(`(?i)` + quoted),
			emphasized: regexp.MustCompile(`(?i)\*\*` + quoted + `\*\*`),
		})
	}
	return idx
}

// Duplicates returns titles that were dropped because an earlier page
// already claimed them.
func (x *TitleIndex) Duplicates() []Duplicate {
	return x.duplicates
}

// Len returns the number of indexed titles.
func (x *TitleIndex) Len() int {
	return len(x.entries)
}

// Title returns the indexed title of the page at path.
func (x *TitleIndex) Title(path string) (string, bool) {
	i, ok := x.byPath[path]
	if !ok {
		return "", false
	}
	return x.entries[i].Title, true
}

// Scan returns every candidate mention of an indexed title in body.
// Mentions of the source page itself are never returned. The result is
// unordered and may contain overlapping spans.
func Scan(body, source string, idx *TitleIndex) []models.Mention {
	var out []models.Mention
	for _, e := range idx.entries {
		if e.Path == source {
			continue
		}
		for _, loc := range e.emphasized.FindAllStringIndex(body, -1) {
			out = append(out, models.Mention{
				Source:   source,
				Target:   e.Path,
				Offset:   loc[0],
				Length:   loc[1] - loc[0],
				Text:     body[loc[0]+2 : loc[1]-2],
				Surface:  models.SurfaceEmphasized,
				Priority: PriorityEmphasized,
			})
		}
		for _, loc := range e.plain.FindAllStringIndex(body, -1) {
			if !wordBounded(body, loc[0], loc[1]) {
				continue
			}
			out = append(out, models.Mention{
				Source:   source,
				Target:   e.Path,
				Offset:   loc[0],
				Length:   loc[1] - loc[0],
				Text:     body[loc[0]:loc[1]],
				Surface:  models.SurfacePlain,
				Priority: PriorityPlain,
			})
		}
	}
	return out
}

// MentionsTitle reports whether body contains title as a whole word,
// ignoring case.
func MentionsTitle(body, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(title))
	for _, loc := range re.FindAllStringIndex(body, -1) {
		if wordBounded(body, loc[0], loc[1]) {
			return true
		}
	}
	return false
}

// wordBounded reports whether body[start:end] is not glued to word runes on
// either side. Edges that are not word runes themselves need no boundary.
func wordBounded(body string, start, end int) bool {
	if start > 0 {
		first, _ := utf8.DecodeRuneInString(body[start:end])
		prev, _ := utf8.DecodeLastRuneInString(body[:start])
		if isWordRune(first) && isWordRune(prev) {
			return false
		}
	}
	if end < len(body) {
		last, _ := utf8.DecodeLastRuneInString(body[start:end])
		next, _ := utf8.DecodeRuneInString(body[end:])
		if isWordRune(last) && isWordRune(next) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
