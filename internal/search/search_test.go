package search

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/codewiki/internal/apperr"
	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/models"
)

func fixture() *corpus.Snapshot {
	return corpus.NewSnapshot([]*models.Page{
		{Path: "concepts/auth.md", Title: "Authentication", Category: models.CategoryConcept, Tags: []string{"security"},
			Related: []string{"components/session-manager.md"},
			Body:    "How users log in. The Session Manager issues tokens."},
		{Path: "guides/login.md", Title: "Login Guide", Category: models.CategoryGuide, Tags: []string{"howto"},
			Body: "Use auth headers. Configure auth in settings."},
		{Path: "components/session-manager.md", Title: "Session Manager", Category: models.CategoryComponent, Tags: []string{"security", "session"},
			Body: "Keeps sessions alive."},
		{Path: "meta/about.md", Title: "About", Category: models.CategoryMeta, Body: "Nothing relevant."},
	})
}

func TestRank_TitleBeatsBody(t *testing.T) {
	got := Rank(fixture(), "auth", Options{})
	require.Len(t, got, 2)
	assert.Equal(t, "concepts/auth.md", got[0].Path)
	assert.Equal(t, 100, got[0].Score)
	assert.Equal(t, "guides/login.md", got[1].Path)
	assert.Equal(t, 10, got[1].Score)
}

func TestRank_CategoryAndTags(t *testing.T) {
	got := Rank(fixture(), "SECURITY component", Options{})
	require.Len(t, got, 2)
	// session-manager: tag security (40) + category component (50)
	assert.Equal(t, Result{Path: "components/session-manager.md", Title: "Session Manager", Category: models.CategoryComponent, Score: 90}, withoutSnippet(got[0]))
	assert.Equal(t, 40, got[1].Score)
}

func TestRank_TiesBreakByTitle(t *testing.T) {
	snap := corpus.NewSnapshot([]*models.Page{
		{Path: "z.md", Title: "Beta", Body: "word"},
		{Path: "a.md", Title: "Gamma", Body: "word"},
		{Path: "m.md", Title: "Alpha", Body: "word"},
	})
	got := Rank(snap, "word", Options{})
	var titles []string
	for _, r := range got {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, titles)
}

func TestRank_EmptyQueryAndLimit(t *testing.T) {
	assert.Empty(t, Rank(fixture(), "   ", Options{}))
	got := Rank(fixture(), "auth", Options{Limit: 1})
	assert.Len(t, got, 1)
}

func TestRank_Snippets(t *testing.T) {
	got := Rank(fixture(), "auth", Options{})
	assert.Equal(t, "Use <b>auth</b> headers. Configure <b>auth</b> in settings.", got[1].Snippet)
	assert.Equal(t, "How users log in. The Session Manager issues tokens.", got[0].Snippet)

	none := Rank(fixture(), "auth", Options{SnippetResults: -1})
	assert.Empty(t, none[0].Snippet)
}

func TestSnippet_WindowAndEllipsis(t *testing.T) {
	body := strings.Repeat("a ", 100) + "needle" + strings.Repeat(" b", 100)
	s := snippet(body, tokenPattern([]string{"needle"}), 10)
	assert.True(t, strings.HasPrefix(s, "..."))
	assert.True(t, strings.HasSuffix(s, "..."))
	assert.Contains(t, s, "<b>needle</b>")
}

func TestSnippet_RuneBoundary(t *testing.T) {
	body := "ééééé needle"
	s := snippet(body, tokenPattern([]string{"needle"}), 4)
	assert.True(t, strings.HasPrefix(s, "..."))
	assert.True(t, strings.HasSuffix(s, "<b>needle</b>"))
	assert.True(t, utf8Valid(s))
}

func TestTableOfContents(t *testing.T) {
	body := "# Session Manager\n\nIntro.\n\n## Token `refresh` flow\n\n```\n# not a heading\n```\n\n### What's *next*?\n"
	got := TableOfContents(body)
	assert.Equal(t, []TOCEntry{
		{Level: 1, Text: "Session Manager", Anchor: "session-manager"},
		{Level: 2, Text: "Token refresh flow", Anchor: "token-refresh-flow"},
		{Level: 3, Text: "What's next?", Anchor: "whats-next"},
	}, got)
}

func TestTableOfContents_Empty(t *testing.T) {
	assert.Empty(t, TableOfContents("no headings here"))
}

func TestAnchor(t *testing.T) {
	assert.Equal(t, "a-b_c-d", Anchor("  A   b_c-D "))
	assert.Equal(t, "", Anchor("!!!"))
}

func TestRelated(t *testing.T) {
	got, err := Related(fixture(), "concepts/auth.md", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	// explicit 50 + shared tag 10 + auth mentions session manager 15
	assert.Equal(t, RelatedPage{Path: "components/session-manager.md", Title: "Session Manager", Score: 75}, got[0])
}

func TestRelated_Missing(t *testing.T) {
	_, err := Related(fixture(), "nope.md", 5)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func withoutSnippet(r Result) Result {
	r.Snippet = ""
	return r
}

func utf8Valid(s string) bool {
	return strings.ToValidUTF8(s, "�") == s
}
