package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/index"
	"github.com/starford/codewiki/internal/pageservice"
	"github.com/starford/codewiki/internal/sse"
	"github.com/starford/codewiki/internal/testutil"
)

// testEnv sets up a temp corpus, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (http.Handler, string) {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, origins []string) (http.Handler, string) {
	t.Helper()

	root, store := testutil.TestCorpus(t, testutil.Corpus)
	db := testutil.TestDB(t)
	logger := testutil.Logger()

	syncer := index.NewSyncer(db, store, "", logger)
	if _, err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	svc := pageservice.NewService(corpus.NewFSRepository(store, logger), db, syncer, pageservice.Options{}, logger)
	return NewRouter(svc, authEnabled, authToken, origins), root
}

func do(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestGetPage(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/pages/concepts/auth.md")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var page PageDetail
	decode(t, w, &page)
	if page.Title != "Authentication" {
		t.Errorf("title = %q", page.Title)
	}
	if len(page.Backlinks) != 1 || page.Backlinks[0] != "index.md" {
		t.Errorf("backlinks = %v", page.Backlinks)
	}
}

func TestGetPage_EncodedSlash(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/pages/concepts%2Fauth.md")
	if w.Code != http.StatusOK {
		t.Fatalf("encoded path status = %d", w.Code)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/pages/nope.md")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing page = %d, want 404", w.Code)
	}
}

func TestListPages(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/pages?tag=security&sort=title")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp PageListResponse
	decode(t, w, &resp)
	if resp.Total != 2 {
		t.Fatalf("total = %d, want 2", resp.Total)
	}
	if resp.Pages[0].Title != "Authentication" || resp.Pages[1].Title != "Session Manager" {
		t.Errorf("order = %q, %q", resp.Pages[0].Title, resp.Pages[1].Title)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search?q=session")
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp SearchResponse
	decode(t, w, &resp)
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	if resp.Results[0].Path != "components/session-manager.md" {
		t.Errorf("top result = %q", resp.Results[0].Path)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}
}

func TestTableOfContents(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/toc/concepts/auth.md")
	if w.Code != http.StatusOK {
		t.Fatalf("toc status = %d", w.Code)
	}
	var resp TOCResponse
	decode(t, w, &resp)
	if len(resp.Entries) != 2 || resp.Entries[1].Anchor != "flow" {
		t.Errorf("entries = %+v", resp.Entries)
	}
}

func TestRelatedAndRelations(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/related/concepts/auth.md?limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("related status = %d", w.Code)
	}
	var rel RelatedResponse
	decode(t, w, &rel)
	if len(rel.Related) != 1 || rel.Related[0].Path != "components/session-manager.md" {
		t.Errorf("related = %+v", rel.Related)
	}

	w = do(t, router, http.MethodGet, "/relations/concepts/auth.md")
	if w.Code != http.StatusOK {
		t.Fatalf("relations status = %d", w.Code)
	}
	var view RelationsResponse
	decode(t, w, &view)
	if len(view.Implicit) != 1 || view.Implicit[0].Target != "components/session-manager.md" {
		t.Errorf("implicit = %+v", view.Implicit)
	}
	if !strings.HasPrefix(view.SeeAlso, "## Related Pages") {
		t.Errorf("see also = %q", view.SeeAlso)
	}

	w = do(t, router, http.MethodGet, "/relations/nope.md")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing relations = %d, want 404", w.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/report")
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d", w.Code)
	}
	var report ReportResponse
	decode(t, w, &report)
	if report.TotalPages != 4 {
		t.Errorf("total pages = %d, want 4", report.TotalPages)
	}
	if len(report.DeadLinks) != 1 || report.DeadLinks[0].Target != "concepts/missing.md" {
		t.Errorf("dead links = %+v", report.DeadLinks)
	}
}

func TestGraphEndpoint(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/graph")
	if w.Code != http.StatusOK {
		t.Fatalf("graph status = %d", w.Code)
	}
	var resp GraphResponse
	decode(t, w, &resp)
	if len(resp.Nodes) != 4 {
		t.Errorf("nodes = %d, want 4", len(resp.Nodes))
	}
}

func TestLinkEndpoint(t *testing.T) {
	router, root := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/link?dry_run=true")
	if w.Code != http.StatusOK {
		t.Fatalf("dry run status = %d, body = %s", w.Code, w.Body.String())
	}
	var dry LinkResponse
	decode(t, w, &dry)
	if !dry.DryRun || len(dry.Changed) != 1 {
		t.Fatalf("dry run report = %+v", dry)
	}
	data, _ := os.ReadFile(filepath.Join(root, "concepts", "auth.md"))
	if strings.Contains(string(data), "](../components/session-manager.md)") {
		t.Fatal("dry run must not write")
	}

	w = do(t, router, http.MethodPost, "/link")
	if w.Code != http.StatusOK {
		t.Fatalf("link status = %d", w.Code)
	}
	data, _ = os.ReadFile(filepath.Join(root, "concepts", "auth.md"))
	if !strings.Contains(string(data), "**[Session Manager](../components/session-manager.md)**") {
		t.Errorf("auth.md not linked:\n%s", data)
	}

	w = do(t, router, http.MethodGet, "/pages/components/session-manager.md")
	var page PageDetail
	decode(t, w, &page)
	if len(page.Backlinks) != 1 || page.Backlinks[0] != "concepts/auth.md" {
		t.Errorf("backlinks after link = %v", page.Backlinks)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/pages", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/pages")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/pages", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/pages")
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestCORS_PreflightBeforeAuth(t *testing.T) {
	router, _ := testEnvFull(t, true, "secret123", []string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodOptions, "/pages", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Fatal("preflight must not require auth")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestEvents_AuthProtected(t *testing.T) {
	_, store := testutil.TestCorpus(t, testutil.Corpus)
	db := testutil.TestDB(t)
	logger := testutil.Logger()
	syncer := index.NewSyncer(db, store, "", logger)
	svc := pageservice.NewService(corpus.NewFSRepository(store, logger), db, syncer, pageservice.Options{}, logger)

	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	router := NewRouter(svc, true, "secret123", nil, WithEvents(broker))

	w := do(t, router, http.MethodGet, "/events")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed events = %d, want 401", w.Code)
	}
}

func TestLink_PublishesFinishedEvent(t *testing.T) {
	_, store := testutil.TestCorpus(t, testutil.Corpus)
	db := testutil.TestDB(t)
	logger := testutil.Logger()
	syncer := index.NewSyncer(db, store, "", logger)
	if _, err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	svc := pageservice.NewService(corpus.NewFSRepository(store, logger), db, syncer, pageservice.Options{}, logger)

	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)
	router := NewRouter(svc, false, "", nil, WithEvents(broker))

	if w := do(t, router, http.MethodPost, "/link?dry_run=true"); w.Code != http.StatusOK {
		t.Fatalf("link status = %d", w.Code)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), "event: link.finished") {
				if !strings.Contains(string(msg), `"changed":1`) {
					t.Errorf("finished event = %q", msg)
				}
				return
			}
		case <-deadline:
			t.Fatal("no link.finished event")
		}
	}
}
