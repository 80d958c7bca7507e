package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/codewiki/internal/pagefile"
)

// settleDelay is how long a path must stay quiet before the watcher applies
// it. Atomic writes and editors emit several events per save.
const settleDelay = 150 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch keeps the index in step with the corpus directory until ctx is
// cancelled. Events are coalesced per page; once a page settles, its current
// on-disk state is applied: indexed when present and changed, removed when
// gone. A rename also triggers a full reconcile, since fsnotify reports only
// the old name. cb, if non-nil, is called after each index change.
func (s *Syncer) Watch(ctx context.Context, root string, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	l := &watchLoop{
		s:       s,
		w:       w,
		root:    root,
		cb:      cb,
		pending: make(map[string]struct{}),
	}
	if err := l.addDirs(root); err != nil {
		return err
	}
	s.logger.Info("watcher: started", slog.String("root", root))

	timer := time.NewTimer(settleDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watcher: stopped")
			return nil

		case <-timer.C:
			l.flush()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if l.handle(ev) {
				timer.Reset(settleDelay)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

type watchLoop struct {
	s       *Syncer
	w       *fsnotify.Watcher
	root    string
	cb      EventCallback
	pending map[string]struct{}
	// rescan is set by renames and new directories.
	rescan bool
}

// handle records ev and reports whether a flush should be scheduled.
func (l *watchLoop) handle(ev fsnotify.Event) bool {
	rel, ok := l.rel(ev.Name)
	if !ok {
		return false
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := l.addDirs(ev.Name); err != nil {
				l.s.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel),
					slog.String("error", err.Error()))
			}
			// Files may land before the directory is watched.
			l.rescan = true
			return true
		}
	}

	if !strings.HasSuffix(rel, ".md") || l.s.excluded(rel) {
		return false
	}
	l.pending[rel] = struct{}{}
	if ev.Op&fsnotify.Rename != 0 {
		l.rescan = true
	}
	return true
}

// flush applies every settled path, then reconciles if needed.
func (l *watchLoop) flush() {
	paths := make([]string, 0, len(l.pending))
	for p := range l.pending {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	clear(l.pending)

	for _, p := range paths {
		l.apply(p)
	}
	if l.rescan {
		l.rescan = false
		l.reconcile()
	}
}

// apply brings the index entry for rel in line with the file on disk.
func (l *watchLoop) apply(rel string) {
	logger := l.s.logger
	prev, err := l.s.db.GetChecksum(rel)
	if err != nil {
		logger.Warn("watcher: lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	data, err := l.s.store.Read(rel)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if prev == "" {
			return
		}
		if err := l.s.db.DeletePage(rel); err != nil {
			logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		l.notify("deleted", rel)
		return
	case err != nil:
		logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	if prev != "" && prev == pagefile.Checksum(data) {
		return
	}
	if err := l.s.IndexFile(rel, data); err != nil {
		logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	kind := "updated"
	if prev == "" {
		kind = "created"
	}
	l.notify(kind, rel)
}

// reconcile removes index entries whose file is gone and indexes files the
// index has not seen or holds a stale checksum for.
func (l *watchLoop) reconcile() {
	logger := l.s.logger
	indexed, err := l.s.db.AllChecksums()
	if err != nil {
		logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
		return
	}
	metas, err := l.s.store.List("")
	if err != nil {
		logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
		return
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}
		if indexed[m.Path] != m.Checksum {
			l.apply(m.Path)
		}
	}
	for p := range indexed {
		if _, ok := onDisk[p]; !ok {
			l.apply(p)
		}
	}
}

func (l *watchLoop) notify(kind, rel string) {
	l.s.logger.Debug("watcher: applied", slog.String("path", rel), slog.String("op", kind))
	if l.cb != nil {
		l.cb(kind, rel)
	}
}

// rel converts an absolute event path into a slash-separated corpus path.
func (l *watchLoop) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addDirs watches dir and its subdirectories, skipping hidden ones such
// as .git.
func (l *watchLoop) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != l.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return l.w.Add(p)
	})
}
