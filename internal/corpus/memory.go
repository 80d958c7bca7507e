package corpus

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/codewiki/internal/apperr"
	"github.com/starford/codewiki/internal/models"
)

// Memory is an in-memory Repository, used for fixtures and tests.
type Memory struct {
	mu     sync.RWMutex
	pages  map[string]*models.Page
	saves  map[string]int
	failOn map[string]error
}

// NewMemory creates a repository holding copies of pages.
func NewMemory(pages ...*models.Page) *Memory {
	m := &Memory{
		pages:  make(map[string]*models.Page, len(pages)),
		saves:  make(map[string]int),
		failOn: make(map[string]error),
	}
	for _, p := range pages {
		m.pages[p.Path] = p.Clone()
	}
	return m
}

// FailOn makes SaveOne return err for path.
func (m *Memory) FailOn(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[path] = err
}

// Saves returns how many times path was saved.
func (m *Memory) Saves(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves[path]
}

// LoadAll returns a snapshot of copies of all pages.
func (m *Memory) LoadAll(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pages := make([]*models.Page, 0, len(m.pages))
	for _, p := range m.pages {
		pages = append(pages, p.Clone())
	}
	return NewSnapshot(pages), nil
}

// LoadOne returns a copy of the page at path.
func (m *Memory) LoadOne(_ context.Context, path string) (*models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[path]
	if !ok {
		return nil, fmt.Errorf("corpus: load %s: %w", path, apperr.ErrNotFound)
	}
	return p.Clone(), nil
}

// SaveOne stores a copy of page.
func (m *Memory) SaveOne(_ context.Context, page *models.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[page.Path]; err != nil {
		return err
	}
	m.pages[page.Path] = page.Clone()
	m.saves[page.Path]++
	return nil
}
