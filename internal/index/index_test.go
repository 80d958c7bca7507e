package index

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/codewiki/internal/apperr"
	"github.com/starford/codewiki/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "codewiki-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func inline(targets ...string) []models.Link {
	out := make([]models.Link, len(targets))
	for i, t := range targets {
		out[i] = models.Link{Target: t, Type: "inline"}
	}
	return out
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages`).Scan(&count); err != nil {
		t.Fatalf("pages table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM links`).Scan(&count); err != nil {
		t.Fatalf("links table missing: %v", err)
	}
}

func TestUpsertAndGetPage(t *testing.T) {
	db := testDB(t)
	row := PageRow{
		Path:     "concepts/auth.md",
		Title:    "Authentication",
		Category: models.CategoryConcept,
		Checksum: "abc123",
		Tags:     []string{"security", "session"},
		Updated:  "2024-05-01",
	}
	if err := db.UpsertPage(row, inline("components/session-manager.md")); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	cs, err := db.GetChecksum("concepts/auth.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetPage("concepts/auth.md")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if got.Title != "Authentication" || got.Category != models.CategoryConcept || got.Updated != "2024-05-01" {
		t.Errorf("page = %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[1] != "session" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetPage("missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(PageRow{Path: "a.md", Checksum: "1"}, inline("b.md"))
	_ = db.UpsertPage(PageRow{Path: "c.md", Checksum: "2"}, append(inline("b.md"), models.Link{Target: "b.md", Type: "related"}))
	_ = db.UpsertPage(PageRow{Path: "b.md", Checksum: "3"}, inline("b.md"))

	bl, err := db.Backlinks("b.md")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 2 || bl[0] != "a.md" || bl[1] != "c.md" {
		t.Fatalf("backlinks = %v, want [a.md c.md]", bl)
	}
}

func TestDeletePage(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(PageRow{Path: "del.md", Checksum: "x"}, inline("target.md"))

	if err := db.DeletePage("del.md"); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	cs, _ := db.GetChecksum("del.md")
	if cs != "" {
		t.Errorf("deleted page still has checksum %q", cs)
	}
	bl, _ := db.Backlinks("target.md")
	if len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertPage(PageRow{Path: "up.md", Title: "Old", Checksum: "1", IndexedAt: now}, inline("x.md"))
	_ = db.UpsertPage(PageRow{Path: "up.md", Title: "New", Checksum: "2", Tags: []string{"new"}, IndexedAt: now}, inline("y.md"))

	cs, _ := db.GetChecksum("up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	bl, _ := db.Backlinks("x.md")
	if len(bl) != 0 {
		t.Error("old link should be removed on upsert")
	}
	bl, _ = db.Backlinks("y.md")
	if len(bl) != 1 {
		t.Error("new link should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListPages(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(PageRow{Path: "b.md", Title: "beta", Category: models.CategoryGuide, Tags: []string{"x"}, Updated: "2024-01-01"}, nil)
	_ = db.UpsertPage(PageRow{Path: "a.md", Title: "Alpha", Category: models.CategoryConcept, Tags: []string{"x", "y"}, Updated: "2024-03-01"}, nil)
	_ = db.UpsertPage(PageRow{Path: "c.md", Title: "Gamma", Category: models.CategoryConcept, Updated: "2023-12-01"}, nil)

	rows, total, err := db.ListPages(ListQuery{})
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if total != 3 || len(rows) != 3 || rows[0].Path != "a.md" {
		t.Errorf("rows = %+v, total = %d", rows, total)
	}

	rows, total, _ = db.ListPages(ListQuery{Category: "concept", Sort: "updated"})
	if total != 2 || rows[0].Path != "a.md" || rows[1].Path != "c.md" {
		t.Errorf("category filter rows = %+v", rows)
	}

	rows, total, _ = db.ListPages(ListQuery{Tag: "x", Sort: "title", Limit: 1})
	if total != 2 || len(rows) != 1 || rows[0].Path != "a.md" {
		t.Errorf("tag filter rows = %+v, total = %d", rows, total)
	}

	rows, _, _ = db.ListPages(ListQuery{Tag: "x", Sort: "title", Limit: 1, Offset: 1})
	if len(rows) != 1 || rows[0].Path != "b.md" {
		t.Errorf("offset rows = %+v", rows)
	}
}

func TestGraph(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(PageRow{Path: "a.md", Title: "A", Category: models.CategoryMeta}, inline("b.md", "gone.md"))
	_ = db.UpsertPage(PageRow{Path: "b.md", Title: "B"}, []models.Link{{Target: "a.md", Type: "related"}})

	nodes, links, err := db.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(nodes) != 2 || nodes[0].ID != "a.md" || nodes[0].Category != models.CategoryMeta {
		t.Errorf("nodes = %+v", nodes)
	}
	want := []GraphLink{
		{Source: "a.md", Target: "b.md", Type: "inline"},
		{Source: "a.md", Target: "gone.md", Type: "inline"},
		{Source: "b.md", Target: "a.md", Type: "related"},
	}
	if len(links) != len(want) {
		t.Fatalf("links = %+v", links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("link[%d] = %+v, want %+v", i, links[i], want[i])
		}
	}
}
