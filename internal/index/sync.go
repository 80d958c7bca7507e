package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/codewiki/internal/health"
	"github.com/starford/codewiki/internal/models"
	"github.com/starford/codewiki/internal/pagefile"
	"github.com/starford/codewiki/internal/storage"
)

// SyncStats summarizes one Sync pass.
type SyncStats struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// Syncer keeps the index in line with the corpus on disk.
type Syncer struct {
	db        *DB
	store     storage.Provider
	urlPrefix string
	logger    *slog.Logger
}

// NewSyncer creates a Syncer. urlPrefix is the site prefix rooted links may carry.
func NewSyncer(db *DB, store storage.Provider, urlPrefix string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{db: db, store: store, urlPrefix: urlPrefix, logger: logger}
}

// Sync walks the corpus and brings the index up to date:
//   - new/changed pages are parsed and upserted
//   - pages removed from disk are deleted from the index
func (s *Syncer) Sync(ctx context.Context) (SyncStats, error) {
	var stats SyncStats
	metas, err := s.store.List("")
	if err != nil {
		return stats, err
	}

	checksums, err := s.db.AllChecksums()
	if err != nil {
		return stats, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			stats.Unchanged++
			continue
		}

		data, err := s.store.Read(m.Path)
		if err != nil {
			stats.Failed++
			s.logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := s.IndexFile(m.Path, data); err != nil {
			stats.Failed++
			s.logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			stats.Indexed++
			s.logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := s.db.DeletePage(p); err != nil {
				s.logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				stats.Removed++
				s.logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	s.logger.Info("sync: done",
		slog.Int("indexed", stats.Indexed),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("removed", stats.Removed),
		slog.Int("failed", stats.Failed))
	return stats, nil
}

// IndexFile parses data and upserts the page with its outgoing links.
func (s *Syncer) IndexFile(path string, data []byte) error {
	p := pagefile.Parse(path, data)
	return s.db.UpsertPage(PageRow{
		Path:      path,
		Title:     p.Title,
		Category:  p.Category,
		Checksum:  pagefile.Checksum(data),
		Tags:      p.Tags,
		Updated:   p.Updated,
		IndexedAt: time.Now(),
	}, pageLinks(p, s.urlPrefix))
}

// pageLinks lists the internal body links and declared relations of p.
// Wikilinks keep their title key; queries resolve them against page titles.
func pageLinks(p *models.Page, urlPrefix string) []models.Link {
	edges := health.PageEdges(p, urlPrefix)
	out := make([]models.Link, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Link)
	}
	return out
}

// excluded reports whether the store hides rel from listings.
func (s *Syncer) excluded(rel string) bool {
	ex, ok := s.store.(interface{ Excluded(string) bool })
	return ok && ex.Excluded(rel)
}
