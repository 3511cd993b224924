// Package notestore implements the filesystem-backed note store. All paths
// crossing its boundary are slash-separated and relative to the notebook
// root; entries whose name starts with a dot are invisible to callers.
package notestore

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hverdal/quire/internal/apperr"
)

// Entry describes a single visible file or directory in the store.
type Entry struct {
	Path    string // slash-separated, relative to the notebook root
	Dir     bool
	Size    int64
	ModTime time.Time
}

// Name returns the entry's base name.
func (e Entry) Name() string {
	return path.Base(e.Path)
}

// Store is the interface for notebook file operations.
type Store interface {
	// Root returns the absolute notebook root directory.
	Root() string
	// Stat returns the entry at path, or fs.ErrNotExist.
	Stat(path string) (Entry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Create writes content to a path that must not yet exist.
	Create(path string, content []byte) error
	// Mkdir creates a directory that must not yet exist.
	Mkdir(path string) error
	// Delete removes the file at path.
	Delete(path string) error
	// DeleteAll removes the directory at path and everything under it.
	DeleteAll(path string) error
	// Move renames a file or directory; the destination must not exist.
	Move(oldPath, newPath string) error
	// Walk visits every visible entry in depth-first order.
	Walk(fn func(Entry) error) error
}

// Dir implements Store backed by a directory on the local file system.
type Dir struct {
	root string // absolute
}

var _ Store = (*Dir)(nil)

// NewDir creates a store rooted at root, creating the directory if needed.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("notestore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("notestore: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("notestore: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("notestore: root is not a directory: %s", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute notebook root directory.
func (d *Dir) Root() string { return d.root }

// abs resolves a relative slash path against the root and rejects any result
// that escapes it.
func (d *Dir) abs(rel string) (string, error) {
	if rel == "" || rel == "." {
		return d.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("notestore: %w: absolute path %q", apperr.ErrInvalidPath, rel)
	}
	joined := filepath.Join(d.root, cleaned)
	if joined != d.root && !strings.HasPrefix(joined, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("notestore: %w: %q escapes notebook root", apperr.ErrInvalidPath, rel)
	}
	return joined, nil
}

// rel converts an absolute path back to the store's slash form.
func (d *Dir) rel(abs string) string {
	r, err := filepath.Rel(d.root, abs)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(r)
}

// Stat returns the entry at path, or fs.ErrNotExist.
func (d *Dir) Stat(rel string) (Entry, error) {
	abs, err := d.abs(rel)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("notestore: stat %s: %w", rel, err)
	}
	return Entry{Path: d.rel(abs), Dir: info.IsDir(), Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Read returns the raw bytes of the file at path.
func (d *Dir) Read(rel string) ([]byte, error) {
	abs, err := d.abs(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("notestore: read %s: %w", rel, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file in the target directory, fsync,
// rename over the destination. Parent directories are created as needed.
func (d *Dir) Write(rel string, content []byte) error {
	abs, err := d.abs(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("notestore: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".quire-tmp-*")
	if err != nil {
		return fmt.Errorf("notestore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("notestore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("notestore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("notestore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("notestore: rename: %w", err)
	}
	success = true
	return nil
}

// Create writes content to a path that must not yet exist.
func (d *Dir) Create(rel string, content []byte) error {
	abs, err := d.abs(rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("notestore: create %s: %w", rel, fs.ErrExist)
	}
	return d.Write(rel, content)
}

// Mkdir creates a directory that must not yet exist.
func (d *Dir) Mkdir(rel string) error {
	abs, err := d.abs(rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("notestore: mkdir %s: %w", rel, fs.ErrExist)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("notestore: mkdir %s: %w", rel, err)
	}
	return nil
}

// Delete removes the file at path.
func (d *Dir) Delete(rel string) error {
	abs, err := d.abs(rel)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("notestore: delete %s: %w", rel, err)
	}
	if info.IsDir() {
		return fmt.Errorf("notestore: delete %s: %w: is a directory", rel, apperr.ErrInvalidPath)
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("notestore: delete %s: %w", rel, err)
	}
	return nil
}

// DeleteAll removes the directory at path and everything under it.
func (d *Dir) DeleteAll(rel string) error {
	abs, err := d.abs(rel)
	if err != nil {
		return err
	}
	if abs == d.root {
		return fmt.Errorf("notestore: delete: %w: refusing to remove notebook root", apperr.ErrInvalidPath)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("notestore: delete %s: %w", rel, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("notestore: delete %s: %w: not a directory", rel, apperr.ErrInvalidPath)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("notestore: delete %s: %w", rel, err)
	}
	return nil
}

// Move renames a file or directory. Destination parents are created; an
// existing destination is an error.
func (d *Dir) Move(oldRel, newRel string) error {
	absOld, err := d.abs(oldRel)
	if err != nil {
		return err
	}
	absNew, err := d.abs(newRel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absOld); err != nil {
		return fmt.Errorf("notestore: move %s: %w", oldRel, err)
	}
	if _, err := os.Stat(absNew); err == nil {
		return fmt.Errorf("notestore: move to %s: %w", newRel, fs.ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("notestore: mkdir for move: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("notestore: move: %w", err)
	}
	return nil
}

// Walk visits every visible entry under the root in depth-first order.
// Hidden entries (dot-prefixed names) and their subtrees are skipped.
func (d *Dir) Walk(fn func(Entry) error) error {
	err := filepath.WalkDir(d.root, func(p string, de fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == d.root {
			return nil
		}
		if strings.HasPrefix(de.Name(), ".") {
			if de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		return fn(Entry{
			Path:    d.rel(p),
			Dir:     de.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
	if err != nil {
		return fmt.Errorf("notestore: walk: %w", err)
	}
	return nil
}
