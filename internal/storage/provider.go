// Package storage defines the corpus file-system abstraction.
package storage

import "github.com/starford/codewiki/internal/models"

// Provider is the interface for corpus file operations.
type Provider interface {
	// List returns metadata for every non-excluded .md file under dir (relative to corpus root).
	List(dir string) ([]models.PageMetadata, error)
	// Read returns the raw bytes of the file at path (relative to corpus root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to corpus root).
	Write(path string, content []byte) error
}
