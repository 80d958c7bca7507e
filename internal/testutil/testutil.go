// Package testutil provides shared test helpers for setting up corpora and databases.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/codewiki/internal/index"
	"github.com/starford/codewiki/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "codewiki-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCorpus creates a temporary corpus directory holding files (corpus
// path → content) and returns it with a storage provider.
func TestCorpus(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Corpus is a small documentation corpus used across package tests.
var Corpus = map[string]string{
	"index.md":                      "---\ntitle: Home\ncategory: meta\n---\n# Home\n\nStart with [Authentication](concepts/auth.md).\n",
	"concepts/auth.md":              "---\ntitle: Authentication\ntags: [security]\nupdated: 2024-05-01\n---\n# Authentication\n\nThe **Session Manager** coordinates tokens.\n\n## Flow\n\nSee [missing](missing.md).\n",
	"components/session-manager.md": "---\ntitle: Session Manager\ntags: [security, session]\n---\n# Session Manager\n\nKeeps sessions alive.\n",
	"guides/setup.md":               "---\ntitle: Setup Guide\n---\n# Setup Guide\n\nInstall and run.\n",
}
