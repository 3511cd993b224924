package notestore

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is called for each visible file change under the notebook
// root. kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the notebook root and reports file
// change events until ctx is cancelled.
//
// New directories created at runtime are added to the watch list and any
// visible files already inside them are announced as created. A rename of a
// watched name is reported as a deletion; the new name arrives as its own
// create event.
func Watch(ctx context.Context, store Store, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	emit := func(kind, rel string) {
		if cb != nil {
			cb(kind, rel)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || hiddenPath(rel) {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					}
					announceDir(root, ev.Name, emit)
					continue
				}
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				logger.Debug("watcher: created", slog.String("path", rel))
				emit("created", rel)
			case ev.Op&fsnotify.Write != 0:
				logger.Debug("watcher: updated", slog.String("path", rel))
				emit("updated", rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				logger.Debug("watcher: deleted", slog.String("path", rel))
				emit("deleted", rel)
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: error", slog.String("error", werr.Error()))
		}
	}
}

// addDirsRecursive adds dir and all visible subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

// announceDir emits created events for visible files already present under
// dir, e.g. when a directory was moved into the notebook wholesale.
func announceDir(root, dir string, emit func(kind, rel string)) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(root, p); relErr == nil {
			emit("created", filepath.ToSlash(rel))
		}
		return nil
	})
}

// hiddenPath reports whether any segment of rel is dot-prefixed.
func hiddenPath(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
