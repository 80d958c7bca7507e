// Package health computes structural metrics over the corpus link graph:
// per-page counts, orphans, dead links and link popularity.
package health

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/models"
)

// DefaultTop is the default length of the most/least linked lists.
const DefaultTop = 10

// Options configures Analyze.
type Options struct {
	// RootPage is exempt from orphan and least-linked reporting.
	RootPage string
	// URLPrefix is the site path prefix that rooted links may carry.
	URLPrefix string
	// Top bounds the most/least linked lists.
	Top int
}

func (o Options) withDefaults() Options {
	if o.RootPage == "" {
		o.RootPage = "index.md"
	}
	if o.Top <= 0 {
		o.Top = DefaultTop
	}
	return o
}

// PageStats holds the metrics of one page.
type PageStats struct {
	Path          string          `json:"path"`
	Title         string          `json:"title"`
	Category      models.Category `json:"category"`
	Words         int             `json:"words"`
	OutboundLinks int             `json:"outbound_links"`
	Headings      int             `json:"headings"`
	InboundLinks  int             `json:"inbound_links"`
}

// DeadLink is a reference to a page that does not exist.
type DeadLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Raw    string `json:"raw"`
}

// Report is the result of one analysis pass.
type Report struct {
	TotalPages      int                     `json:"total_pages"`
	TotalWords      int                     `json:"total_words"`
	TotalLinks      int                     `json:"total_links"`
	AvgOutbound     float64                 `json:"avg_outbound"`
	AvgInbound      float64                 `json:"avg_inbound"`
	ByCategory      map[models.Category]int `json:"by_category"`
	UpdateHistogram map[string]int          `json:"update_histogram"`
	Pages           []PageStats             `json:"pages"`
	Orphans         []string                `json:"orphans"`
	DeadLinks       []DeadLink              `json:"dead_links"`
	MostLinked      []PageStats             `json:"most_linked"`
	LeastLinked     []PageStats             `json:"least_linked"`
}

// Link types produced by Edges.
const (
	LinkInline  = "inline"
	LinkRelated = "related"
)

// Edge is a resolved internal reference between two pages.
type Edge struct {
	models.Link
	Raw string `json:"raw"`
}

// PageEdges returns the internal references of p: body links followed by
// declared relations. Declared paths are corpus-rooted and normalized like
// rooted link targets. Wikilink edges carry their title key so a caller can
// resolve them by title.
func PageEdges(p *models.Page, prefix string) []Edge {
	var out []Edge
	for _, ref := range References(p.Path, p.Body, prefix) {
		if ref.Target == "" {
			continue
		}
		e := Edge{Link: models.Link{Source: p.Path, Target: ref.Target, Type: LinkInline}, Raw: ref.Raw}
		if ref.Kind == RefWiki {
			e.TitleKey = TitleKey(ref.Raw)
		}
		out = append(out, e)
	}
	for _, rel := range p.Related {
		target, ok := NormalizeTarget(p.Path, "/"+rel, prefix)
		if !ok {
			target = rel
		}
		out = append(out, Edge{Link: models.Link{Source: p.Path, Target: target, Type: LinkRelated}, Raw: rel})
	}
	return out
}

// TitleKey is the lookup key of a page title.
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Edges returns every internal reference in the snapshot. Wikilinks that do
// not name a path resolve to the first page, in path order, with that
// title. Targets may point at missing pages.
func Edges(snap *corpus.Snapshot, opts Options) []Edge {
	byTitle := make(map[string]string, snap.Len())
	for _, p := range snap.Pages() {
		key := TitleKey(p.Title)
		if _, dup := byTitle[key]; !dup && key != "" {
			byTitle[key] = p.Path
		}
	}

	var out []Edge
	for _, p := range snap.Pages() {
		for _, e := range PageEdges(p, opts.URLPrefix) {
			if e.TitleKey != "" && !snap.Has(e.Target) {
				if byT, ok := byTitle[e.TitleKey]; ok {
					e.Target = byT
				}
			}
			out = append(out, e)
		}
	}
	return out
}

// Analyze computes the health report of the snapshot.
func Analyze(snap *corpus.Snapshot, opts Options) *Report {
	opts = opts.withDefaults()
	r := &Report{
		TotalPages:      snap.Len(),
		ByCategory:      make(map[models.Category]int),
		UpdateHistogram: make(map[string]int),
		Pages:           make([]PageStats, 0, snap.Len()),
		Orphans:         []string{},
		DeadLinks:       []DeadLink{},
	}

	inbound := make(map[string]map[string]struct{})
	for _, e := range Edges(snap, opts) {
		if !snap.Has(e.Target) {
			r.DeadLinks = append(r.DeadLinks, DeadLink{Source: e.Source, Target: e.Target, Raw: e.Raw})
			continue
		}
		if e.Target == e.Source {
			continue
		}
		if inbound[e.Target] == nil {
			inbound[e.Target] = make(map[string]struct{})
		}
		inbound[e.Target][e.Source] = struct{}{}
	}

	totalInbound := 0
	for _, p := range snap.Pages() {
		refs, text := extract(p.Path, p.Body, opts.URLPrefix)
		st := PageStats{
			Path:          p.Path,
			Title:         p.Title,
			Category:      p.Category,
			Words:         countWords(text),
			OutboundLinks: len(refs),
			Headings:      countHeadings(p.Body),
			InboundLinks:  len(inbound[p.Path]),
		}
		r.Pages = append(r.Pages, st)
		r.TotalWords += st.Words
		r.TotalLinks += st.OutboundLinks
		totalInbound += st.InboundLinks
		r.ByCategory[p.Category]++
		r.UpdateHistogram[month(p.Updated)]++

		if st.InboundLinks == 0 && p.Path != opts.RootPage {
			r.Orphans = append(r.Orphans, p.Path)
		}
	}
	if r.TotalPages > 0 {
		r.AvgOutbound = float64(r.TotalLinks) / float64(r.TotalPages)
		r.AvgInbound = float64(totalInbound) / float64(r.TotalPages)
	}

	slices.SortStableFunc(r.DeadLinks, func(a, b DeadLink) int {
		if c := cmp.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.Target, b.Target)
	})
	r.MostLinked = mostLinked(r.Pages, opts.Top)
	r.LeastLinked = leastLinked(r.Pages, opts.RootPage, opts.Top)
	return r
}

func mostLinked(pages []PageStats, top int) []PageStats {
	out := []PageStats{}
	for _, p := range pages {
		if p.InboundLinks > 0 {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b PageStats) int {
		if c := cmp.Compare(b.InboundLinks, a.InboundLinks); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return out[:min(top, len(out))]
}

func leastLinked(pages []PageStats, root string, top int) []PageStats {
	out := []PageStats{}
	for _, p := range pages {
		if p.InboundLinks > 0 && p.Path != root {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b PageStats) int {
		if c := cmp.Compare(a.InboundLinks, b.InboundLinks); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return out[:min(top, len(out))]
}

var monthRe = regexp.MustCompile(`^(\d{4})-(\d{2})`)

// month buckets an updated date as YYYY-MM.
func month(updated string) string {
	m := monthRe.FindStringSubmatch(strings.TrimSpace(updated))
	if m == nil {
		return "unknown"
	}
	return m[1] + "-" + m[2]
}

// countWords counts whitespace-separated tokens that contain a letter or
// digit, so markup leftovers such as table pipes do not count.
func countWords(text string) int {
	n := 0
	for _, f := range strings.Fields(text) {
		if strings.IndexFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			n++
		}
	}
	return n
}

// countHeadings counts ATX headings outside fenced code.
func countHeadings(body string) int {
	n := 0
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		if isFence(line) {
			inFence = !inFence
			continue
		}
		if !inFence && isHeading(line) {
			n++
		}
	}
	return n
}

func isHeading(line string) bool {
	t := strings.TrimLeft(line, " ")
	level := 0
	for level < len(t) && t[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return false
	}
	return level == len(t) || t[level] == ' ' || t[level] == '\t'
}
