package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/codewiki/internal/apperr"
	"github.com/starford/codewiki/internal/models"
	"github.com/starford/codewiki/internal/pagefile"
	"github.com/starford/codewiki/internal/storage"
)

// FSRepository implements Repository on top of a storage.Provider.
type FSRepository struct {
	store  storage.Provider
	logger *slog.Logger
	locks  pageLocks
}

// NewFSRepository creates a repository reading pages from store.
func NewFSRepository(store storage.Provider, logger *slog.Logger) *FSRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSRepository{store: store, logger: logger}
}

// LoadAll lists and parses every page. Pages that cannot be read are logged
// and skipped so a single bad file does not abort the pass.
func (r *FSRepository) LoadAll(ctx context.Context) (*Snapshot, error) {
	metas, err := r.store.List("")
	if err != nil {
		return nil, fmt.Errorf("corpus: list: %w", err)
	}

	pages := make([]*models.Page, 0, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := r.store.Read(m.Path)
		if err != nil {
			r.logger.Warn("corpus: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		pages = append(pages, pagefile.Parse(m.Path, data))
	}
	return NewSnapshot(pages), nil
}

// LoadOne reads and parses a single page.
func (r *FSRepository) LoadOne(_ context.Context, path string) (*models.Page, error) {
	data, err := r.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("corpus: load %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("corpus: load %s: %w", path, err)
	}
	return pagefile.Parse(path, data), nil
}

// SaveOne encodes and atomically writes the page under its path lock. When
// the page carries the checksum it was loaded with, the write fails with
// apperr.ErrConflict if the file has changed or vanished since.
func (r *FSRepository) SaveOne(_ context.Context, page *models.Page) error {
	unlock := r.locks.lock(page.Path)
	defer unlock()

	if page.Checksum != "" {
		current, err := r.store.Read(page.Path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("corpus: save %s: %w", page.Path, err)
		}
		if err != nil || pagefile.Checksum(current) != page.Checksum {
			return fmt.Errorf("corpus: save %s: modified since load: %w", page.Path, apperr.ErrConflict)
		}
	}

	data, err := pagefile.Encode(page)
	if err != nil {
		return fmt.Errorf("corpus: encode %s: %w", page.Path, err)
	}
	if err := r.store.Write(page.Path, data); err != nil {
		return fmt.Errorf("corpus: save %s: %w", page.Path, err)
	}
	page.Checksum = pagefile.Checksum(data)
	return nil
}

// pageLocks hands out one mutex per page path. Distinct pages never contend.
type pageLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *pageLocks) lock(path string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	m, ok := l.m[path]
	if !ok {
		m = &sync.Mutex{}
		l.m[path] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
