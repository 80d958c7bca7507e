package linker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/models"
)

func page(path, title, body string) *models.Page {
	return &models.Page{Path: path, Title: title, Body: body, Tags: []string{}, Related: []string{}}
}

func fixturePages() []*models.Page {
	return []*models.Page{
		page("components/session-manager.md", "Session Manager", "# Session Manager\nHandles sessions.\n"),
		page("concepts/auth.md", "Authentication", "The **Session Manager** coordinates tokens.\n"),
		page("concepts/token-store.md", "Token Store", "Tokens live in the token store. See Authentication.\n"),
		page("guides/setup.md", "Setup", "Setup is short.\n"),
	}
}

func TestNewTitleIndex_SkipsShortAndDuplicates(t *testing.T) {
	idx := NewTitleIndex([]*models.Page{
		page("a.md", "API", ""),
		page("b.md", "Token Store", ""),
		page("c.md", "token store", ""),
	})
	require.Equal(t, 1, idx.Len())
	title, ok := idx.Title("b.md")
	assert.True(t, ok)
	assert.Equal(t, "Token Store", title)
	require.Len(t, idx.Duplicates(), 1)
	assert.Equal(t, Duplicate{Title: "token store", Kept: "b.md", Dropped: "c.md"}, idx.Duplicates()[0])
}

func TestScan_EscapesSpecialCharacters(t *testing.T) {
	idx := NewTitleIndex([]*models.Page{
		page("guides/setup-advanced.md", "Setup (Advanced)", ""),
		page("guides/cpp.md", "C++ Guide", ""),
		page("concepts/node.md", "Node.js", ""),
	})
	body := "Read Setup (Advanced) first. C++ Guide covers NodeXjs and Node.js."
	got := Scan(body, "guides/index.md", idx)

	offsets := map[string][]int{}
	for _, m := range got {
		offsets[m.Target] = append(offsets[m.Target], m.Offset)
		assert.Equal(t, body[m.Offset:m.Offset+m.Length], m.Text)
	}
	assert.Equal(t, map[string][]int{
		"guides/setup-advanced.md": {5},
		"guides/cpp.md":            {29},
		"concepts/node.md":         {58},
	}, offsets)

	linked, _ := LinkBody(body, "guides/index.md", idx)
	assert.Contains(t, linked, "[Setup (Advanced)](setup-advanced.md)")
	assert.Contains(t, linked, "NodeXjs and [Node.js](../concepts/node.md)")
	again, added := LinkBody(linked, "guides/index.md", idx)
	assert.Equal(t, linked, again)
	assert.Empty(t, added)
}

func TestScan_WholeWordCaseInsensitive(t *testing.T) {
	idx := NewTitleIndex(fixturePages())
	body := "the TOKEN STORE and tokenstore and token stores, token store."
	got := Scan(body, "x.md", idx)

	var offsets []int
	for _, m := range got {
		assert.Equal(t, "concepts/token-store.md", m.Target)
		offsets = append(offsets, m.Offset)
	}
	assert.Equal(t, []int{4, 49}, offsets)
	assert.Equal(t, "TOKEN STORE", got[0].Text)
}

func TestScan_ExcludesSelf(t *testing.T) {
	idx := NewTitleIndex(fixturePages())
	got := Scan("Session Manager talks to itself.", "components/session-manager.md", idx)
	assert.Empty(t, got)
}

func TestScan_EmphasizedAndPlain(t *testing.T) {
	idx := NewTitleIndex(fixturePages())
	got := Scan("The **Session Manager** coordinates tokens.", "concepts/auth.md", idx)
	require.Len(t, got, 2)
	assert.Equal(t, models.SurfaceEmphasized, got[0].Surface)
	assert.Equal(t, 4, got[0].Offset)
	assert.Equal(t, 19, got[0].Length)
	assert.Equal(t, "Session Manager", got[0].Text)
	assert.Equal(t, models.SurfacePlain, got[1].Surface)
	assert.Equal(t, 6, got[1].Offset)
}

func TestCandidates_SingleEmphasizedMention(t *testing.T) {
	idx := NewTitleIndex(fixturePages())
	got := Candidates("The **Session Manager** coordinates tokens.", "concepts/auth.md", idx)
	require.Len(t, got, 1)
	assert.Equal(t, models.SurfaceEmphasized, got[0].Surface)
	assert.Equal(t, "components/session-manager.md", got[0].Target)
}

func TestSkipOffset(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		marker string
		want   bool
	}{
		{"plain text", "see Token Store here", "Token", false},
		{"link display", "see [Token Store](x.md) here", "Token", true},
		{"link target", "see [x](Token Store) here", "Token", true},
		{"wikilink", "see [[Token Store]] here", "Token", true},
		{"open emphasis", "a **bold Token Store** b", "Token", true},
		{"closed emphasis", "a **bold** Token Store b", "Token", false},
		{"emphasis in earlier paragraph", "a **bold\n\nToken Store", "Token", false},
		{"emphasis in earlier CRLF paragraph", "A\r\n\r\n**open\r\n\r\nToken Store here", "Token", false},
		{"open emphasis across CRLF line", "**open\r\nToken Store", "Token", true},
		{"inline code", "use `Token Store` now", "Token", true},
		{"after inline code", "use `x` Token Store", "Token", false},
		{"fenced block", "```\nToken Store\n```\n", "Token", true},
		{"tilde fence", "~~~\nToken Store\n~~~\n", "Token", true},
		{"after fenced block", "```\nx\n```\nToken Store", "Token", false},
		{"heading", "## Token Store\nbody", "Token", true},
		{"hashtag is not heading", "#tag Token Store", "Token", false},
		{"bracket without link", "[note] Token Store", "Token", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			off := strings.Index(tc.body, tc.marker)
			require.GreaterOrEqual(t, off, 0)
			assert.Equal(t, tc.want, SkipOffset(tc.body, off))
		})
	}
}

func TestResolve_NoOverlapAndPriority(t *testing.T) {
	in := []models.Mention{
		{Target: "b.md", Offset: 6, Length: 15, Priority: PriorityPlain},
		{Target: "a.md", Offset: 4, Length: 19, Priority: PriorityEmphasized},
		{Target: "c.md", Offset: 30, Length: 5, Priority: PriorityPlain},
		{Target: "d.md", Offset: 30, Length: 10, Priority: PriorityPlain},
		{Target: "e.md", Offset: 40, Length: 4, Priority: PriorityPlain},
	}
	got := Resolve(in)

	var targets []string
	for _, m := range got {
		targets = append(targets, m.Target)
	}
	assert.Equal(t, []string{"a.md", "d.md", "e.md"}, targets)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Offset, got[i-1].End())
	}
}

func TestResolve_TieBreakByTarget(t *testing.T) {
	got := Resolve([]models.Mention{
		{Target: "z.md", Offset: 0, Length: 4, Priority: PriorityPlain},
		{Target: "a.md", Offset: 0, Length: 4, Priority: PriorityPlain},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "a.md", got[0].Target)
}

func TestRelativePath(t *testing.T) {
	cases := []struct{ source, target, want string }{
		{"concepts/auth.md", "concepts/token.md", "token.md"},
		{"concepts/auth.md", "components/session-manager.md", "../components/session-manager.md"},
		{"index.md", "guides/setup.md", "guides/setup.md"},
		{"index.md", "about.md", "about.md"},
		{"a/b/c.md", "x.md", "../../x.md"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RelativePath(tc.source, tc.target), "%s -> %s", tc.source, tc.target)
	}
}

func TestLinkBody_EmphasizedExample(t *testing.T) {
	idx := NewTitleIndex(fixturePages())
	got, mentions := LinkBody("The **Session Manager** coordinates tokens.", "concepts/auth.md", idx)
	assert.Equal(t, "The **[Session Manager](../components/session-manager.md)** coordinates tokens.", got)
	assert.Len(t, mentions, 1)
}

func TestLinkBody_KeepsCasingAndSameDirectory(t *testing.T) {
	idx := NewTitleIndex(fixturePages())
	got, _ := LinkBody("Tokens live in the token store. See authentication.\n", "concepts/other.md", idx)
	assert.Equal(t, "Tokens live in the [token store](token-store.md). See [authentication](auth.md).\n", got)
}

func TestLinkBody_Idempotent(t *testing.T) {
	pages := fixturePages()
	idx := NewTitleIndex(pages)
	bodies := []string{
		"The **Session Manager** coordinates tokens with the Token Store.",
		"Authentication uses the session manager.\n\n```\nToken Store\n```\n",
		"# Token Store\nSee `Session Manager` and [Authentication](auth.md).",
		"Authentication, Authentication and **Token Store**.",
	}
	for _, body := range bodies {
		once, _ := LinkBody(body, "guides/setup.md", idx)
		twice, added := LinkBody(once, "guides/setup.md", idx)
		assert.Equal(t, once, twice)
		assert.Empty(t, added, "second pass over %q", once)
	}
}

func TestLinkBody_SkipsProtectedContexts(t *testing.T) {
	idx := NewTitleIndex(fixturePages())
	body := "# Session Manager\n`Session Manager` and [Session Manager](x.md)\n"
	got, mentions := LinkBody(body, "guides/setup.md", idx)
	assert.Equal(t, body, got)
	assert.Empty(t, mentions)
}

func TestMentionsTitle(t *testing.T) {
	assert.True(t, MentionsTitle("uses the token store daily", "Token Store"))
	assert.False(t, MentionsTitle("tokenstore", "Token Store"))
	assert.False(t, MentionsTitle("anything", " "))
}

func TestRunBatch(t *testing.T) {
	repo := corpus.NewMemory(fixturePages()...)
	var calls atomic.Int32
	report, err := RunBatch(context.Background(), repo, BatchOptions{
		Workers:  2,
		Progress: func(done, total int) { calls.Add(1) },
	})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 4, report.Pages)
	assert.Equal(t, int32(4), calls.Load())
	assert.Empty(t, report.Failed)

	var changed []string
	for _, c := range report.Changed {
		changed = append(changed, c.Path)
	}
	assert.Equal(t, []string{"concepts/auth.md", "concepts/token-store.md"}, changed)
	assert.Equal(t, 2, report.LinksAdded)

	auth, err := repo.LoadOne(context.Background(), "concepts/auth.md")
	require.NoError(t, err)
	assert.Equal(t, "The **[Session Manager](../components/session-manager.md)** coordinates tokens.\n", auth.Body)
	assert.Equal(t, 0, repo.Saves("guides/setup.md"))

	again, err := RunBatch(context.Background(), repo, BatchOptions{})
	require.NoError(t, err)
	assert.Empty(t, again.Changed)
	assert.Zero(t, again.LinksAdded)
	assert.NotEqual(t, report.RunID, again.RunID)
}

func TestRunBatch_DryRun(t *testing.T) {
	repo := corpus.NewMemory(fixturePages()...)
	report, err := RunBatch(context.Background(), repo, BatchOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Len(t, report.Changed, 2)
	assert.Equal(t, 0, repo.Saves("concepts/auth.md"))
}

func TestRunBatch_PageFailureDoesNotAbort(t *testing.T) {
	repo := corpus.NewMemory(fixturePages()...)
	repo.FailOn("concepts/auth.md", errors.New("disk full"))

	report, err := RunBatch(context.Background(), repo, BatchOptions{Workers: 4})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, PageError{Path: "concepts/auth.md", Error: "disk full"}, report.Failed[0])
	require.Len(t, report.Changed, 1)
	assert.Equal(t, "concepts/token-store.md", report.Changed[0].Path)
	assert.Equal(t, 1, repo.Saves("concepts/token-store.md"))
}

func TestRunBatch_RelatedRewrite(t *testing.T) {
	repo := corpus.NewMemory(fixturePages()...)
	report, err := RunBatch(context.Background(), repo, BatchOptions{
		Related: func(_ *corpus.Snapshot, _ *TitleIndex, p *models.Page) []string {
			if p.Path == "guides/setup.md" {
				return []string{"concepts/auth.md"}
			}
			return p.Related
		},
	})
	require.NoError(t, err)
	assert.Len(t, report.Changed, 3)

	setup, err := repo.LoadOne(context.Background(), "guides/setup.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"concepts/auth.md"}, setup.Related)
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunBatch(ctx, corpus.NewMemory(fixturePages()...), BatchOptions{})
	assert.Error(t, err)
}
