// Package search ranks corpus pages against a free-text query and derives
// per-page retrieval helpers: table of contents and related pages.
package search

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/models"
)

// Score weights per query token.
const (
	titleScore    = 100
	categoryScore = 50
	tagScore      = 40
	bodyScore     = 5
)

// Defaults for Options.
const (
	DefaultSnippetResults = 10
	DefaultWindow         = 80
)

// Options configures Rank.
type Options struct {
	// Limit caps the number of results. Zero means no limit.
	Limit int
	// SnippetResults is how many top results get a snippet. Negative
	// disables snippets.
	SnippetResults int
	// Window is the number of bytes kept on each side of the first match.
	Window int
}

// Result is one ranked page.
type Result struct {
	Path     string          `json:"path"`
	Title    string          `json:"title"`
	Category models.Category `json:"category"`
	Score    int             `json:"score"`
	Snippet  string          `json:"snippet,omitempty"`
}

// Rank scores every page against the query tokens and returns pages with a
// positive score, best first. Ties break on title, then path.
func Rank(snap *corpus.Snapshot, query string, opts Options) []Result {
	if opts.SnippetResults == 0 {
		opts.SnippetResults = DefaultSnippetResults
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []Result{}
	}

	results := []Result{}
	for _, p := range snap.Pages() {
		if s := score(p, tokens); s > 0 {
			results = append(results, Result{Path: p.Path, Title: p.Title, Category: p.Category, Score: s})
		}
	}
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	re := tokenPattern(tokens)
	for i := range results[:max(0, min(opts.SnippetResults, len(results)))] {
		p, _ := snap.Get(results[i].Path)
		results[i].Snippet = snippet(p.Body, re, opts.Window)
	}
	return results
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func score(p *models.Page, tokens []string) int {
	title := strings.ToLower(p.Title)
	category := strings.ToLower(string(p.Category))
	body := strings.ToLower(p.Body)

	total := 0
	for _, tok := range tokens {
		if strings.Contains(title, tok) {
			total += titleScore
		}
		if strings.Contains(category, tok) {
			total += categoryScore
		}
		for _, tag := range p.Tags {
			if strings.Contains(strings.ToLower(tag), tok) {
				total += tagScore
				break
			}
		}
		total += bodyScore * strings.Count(body, tok)
	}
	return total
}

// tokenPattern matches any token case-insensitively, longest first.
func tokenPattern(tokens []string) *regexp.Regexp {
	sorted := slices.Clone(tokens)
	slices.SortFunc(sorted, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	quoted := make([]string, len(sorted))
	for i, t := range sorted {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
}

// snippet cuts a window around the first match, collapses whitespace, marks
// matches with <b></b> and adds "..." on cut edges.
func snippet(body string, re *regexp.Regexp, window int) string {
	if body == "" {
		return ""
	}
	start, end := 0, 0
	if loc := re.FindStringIndex(body); loc != nil {
		start, end = loc[0], loc[1]
	}
	from := max(0, start-window)
	to := min(len(body), end+window)
	for from > 0 && !utf8.RuneStart(body[from]) {
		from--
	}
	for to < len(body) && !utf8.RuneStart(body[to]) {
		to++
	}

	text := strings.Join(strings.Fields(body[from:to]), " ")
	text = re.ReplaceAllString(text, "<b>$0</b>")
	if from > 0 {
		text = "..." + text
	}
	if to < len(body) {
		text += "..."
	}
	return text
}
