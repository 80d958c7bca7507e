package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/codewiki/internal/apperr"
	"github.com/starford/codewiki/internal/health"
	"github.com/starford/codewiki/internal/models"
)

// PageRow represents a row in the pages table.
type PageRow struct {
	Path      string          `json:"path"`
	Title     string          `json:"title"`
	Category  models.Category `json:"category"`
	Checksum  string          `json:"checksum"`
	Tags      []string        `json:"tags"`
	Updated   string          `json:"updated,omitempty"`
	IndexedAt time.Time       `json:"indexed_at"`
}

// ListQuery filters and pages ListPages.
type ListQuery struct {
	Limit    int
	Offset   int
	Category string
	Tag      string
	// Sort is "path" (default), "title" or "updated".
	Sort string
}

// GraphNode is a page in the link graph.
type GraphNode struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Category models.Category `json:"category"`
}

// GraphLink is an edge in the link graph. Dead targets are included.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// UpsertPage inserts or replaces a page and its outgoing links within a transaction.
func (db *DB) UpsertPage(p PageRow, links []models.Link) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if p.Tags == nil {
		p.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(p.Tags)
	if p.IndexedAt.IsZero() {
		p.IndexedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO pages (path, title, title_key, category, checksum, tags, updated, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			title_key  = excluded.title_key,
			category   = excluded.category,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			updated    = excluded.updated,
			indexed_at = excluded.indexed_at
	`, p.Path, p.Title, health.TitleKey(p.Title), string(p.Category), p.Checksum, string(tagsJSON), p.Updated, p.IndexedAt)
	if err != nil {
		return fmt.Errorf("index: upsert page: %w", err)
	}

	// Replace links: delete old then bulk insert.
	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, p.Path); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target, type, title_key) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(p.Path, l.Target, l.Type, l.TitleKey); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeletePage removes a page and its outgoing links.
func (db *DB) DeletePage(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM pages WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a page, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM pages WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// GetPage returns the indexed row for path.
func (db *DB) GetPage(path string) (*PageRow, error) {
	row := db.conn.QueryRow(`
		SELECT path, title, category, checksum, tags, updated, indexed_at
		FROM pages WHERE path = ?`, path)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: get %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get %s: %w", path, err)
	}
	return p, nil
}

// ListPages returns one page of rows and the total number of matches.
func (db *DB) ListPages(q ListQuery) ([]PageRow, int, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var where []string
	var args []any
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(pages.tags) WHERE json_each.value = ?)")
		args = append(args, q.Tag)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count pages: %w", err)
	}

	order := "path"
	switch q.Sort {
	case "title":
		order = "title COLLATE NOCASE, path"
	case "updated":
		order = "updated DESC, path"
	}
	rows, err := db.conn.Query(`
		SELECT path, title, category, checksum, tags, updated, indexed_at
		FROM pages`+clause+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list pages: %w", err)
	}
	defer rows.Close()

	out := []PageRow{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// AllChecksums returns path → checksum for every indexed page.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// resolvedLinks is the links table with wikilinks whose target names no
// page redirected to the first page, by path, carrying their title.
const resolvedLinks = `
	SELECT l.source, l.type,
		CASE
			WHEN l.title_key = '' OR EXISTS (SELECT 1 FROM pages p WHERE p.path = l.target) THEN l.target
			ELSE COALESCE(
				(SELECT p.path FROM pages p WHERE p.title_key = l.title_key ORDER BY p.path LIMIT 1),
				l.target)
		END AS target
	FROM links l`

// Backlinks returns the distinct page paths that link to or declare a
// relation to the given target, sorted.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT source FROM (`+resolvedLinks+`)
		WHERE target = ? AND source <> target ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Graph returns every page as a node and every stored link as an edge.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	nrows, err := db.conn.Query(`SELECT path, title, category FROM pages ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer nrows.Close()
	nodes := []GraphNode{}
	for nrows.Next() {
		var n GraphNode
		var cat string
		if err := nrows.Scan(&n.ID, &n.Title, &cat); err != nil {
			return nil, nil, err
		}
		n.Category = models.Category(cat)
		nodes = append(nodes, n)
	}
	if err := nrows.Err(); err != nil {
		return nil, nil, err
	}

	lrows, err := db.conn.Query(`
		SELECT DISTINCT source, target, type FROM (` + resolvedLinks + `)
		ORDER BY source, target, type`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer lrows.Close()
	links := []GraphLink{}
	for lrows.Next() {
		var l GraphLink
		if err := lrows.Scan(&l.Source, &l.Target, &l.Type); err != nil {
			return nil, nil, err
		}
		links = append(links, l)
	}
	return nodes, links, lrows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(r rowScanner) (*PageRow, error) {
	var p PageRow
	var cat, tags string
	if err := r.Scan(&p.Path, &p.Title, &cat, &p.Checksum, &tags, &p.Updated, &p.IndexedAt); err != nil {
		return nil, err
	}
	p.Category = models.Category(cat)
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil || p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}
