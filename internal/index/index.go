package index

import "github.com/starford/codewiki/internal/models"

// PageIndex defines the interface for page indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type PageIndex interface {
	UpsertPage(p PageRow, links []models.Link) error
	DeletePage(path string) error
	GetChecksum(path string) (string, error)
	GetPage(path string) (*PageRow, error)
	ListPages(q ListQuery) ([]PageRow, int, error)
	Graph() ([]GraphNode, []GraphLink, error)
	Backlinks(target string) ([]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies PageIndex at compile time.
var _ PageIndex = (*DB)(nil)
