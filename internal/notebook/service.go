// Package notebook implements the server-side operations behind the HTTP
// API, coordinating the note store, renderer, search, settings and
// versioning.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/hverdal/quire/internal/apperr"
	"github.com/hverdal/quire/internal/markdown"
	"github.com/hverdal/quire/internal/notestore"
	"github.com/hverdal/quire/internal/search"
	"github.com/hverdal/quire/internal/settings"
	"github.com/hverdal/quire/internal/tree"
	"github.com/hverdal/quire/internal/vcs"
)

// Note is the full representation served for a single note.
type Note struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	HTML     string `json:"html"`
	FileType string `json:"fileType"`
}

// Service coordinates every notebook operation.
type Service struct {
	store    notestore.Store
	renderer *markdown.Renderer
	settings *settings.Store
	vcs      *vcs.Manager
	logger   *slog.Logger
}

// NewService creates the notebook service.
func NewService(store notestore.Store, renderer *markdown.Renderer, st *settings.Store, mgr *vcs.Manager, logger *slog.Logger) *Service {
	return &Service{store: store, renderer: renderer, settings: st, vcs: mgr, logger: logger}
}

// cleanPath normalizes a client-supplied path and rejects anything that is
// empty, absolute, or contains dot segments. The store re-checks traversal;
// this produces the friendlier validation error.
func cleanPath(p string) (string, error) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "", fmt.Errorf("notebook: %w: empty path", apperr.ErrValidation)
	}
	if strings.Contains(p, "\\") {
		return "", fmt.Errorf("notebook: %w: backslash in path", apperr.ErrValidation)
	}
	for _, seg := range strings.Split(p, "/") {
		switch strings.TrimSpace(seg) {
		case "", ".", "..":
			return "", fmt.Errorf("notebook: %w: bad segment in %q", apperr.ErrInvalidPath, p)
		}
		if strings.HasPrefix(seg, ".") {
			return "", fmt.Errorf("notebook: %w: hidden segment in %q", apperr.ErrInvalidPath, p)
		}
	}
	return p, nil
}

// ensureNoteExt appends .md when the path has no recognized note extension.
func ensureNoteExt(p string) string {
	if tree.IsNotePath(p) {
		return p
	}
	return p + ".md"
}

// mapStoreErr converts os-level sentinels to API errors.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return apperr.ErrNotFound
	case errors.Is(err, fs.ErrExist):
		return apperr.ErrExists
	default:
		return err
	}
}

// autoCommit records a mutation when the auto-commit setting is on. Failures
// are logged, never surfaced: versioning must not break note editing.
func (s *Service) autoCommit(action, p string) {
	if !s.settings.Current().AutoCommitNotes {
		return
	}
	if _, err := s.vcs.CommitAll(fmt.Sprintf("%s %s", action, p)); err != nil {
		s.logger.Warn("auto-commit failed",
			slog.String("action", action),
			slog.String("path", p),
			slog.String("error", err.Error()))
	}
}

// note builds the Note payload, rendering HTML for markdown files only.
func (s *Service) note(p string, data []byte) (*Note, error) {
	fileType := tree.FileType(p)
	html := ""
	if fileType == "markdown" {
		var err error
		html, err = s.renderer.Render(string(data), s.settings.Current().TabLength)
		if err != nil {
			return nil, err
		}
	}
	return &Note{
		Path:     p,
		Name:     path.Base(p),
		Content:  string(data),
		HTML:     html,
		FileType: fileType,
	}, nil
}

// GetNote reads and renders one note.
func (s *Service) GetNote(_ context.Context, p string) (*Note, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if !tree.IsNotePath(p) {
		return nil, fmt.Errorf("notebook: %w: %q is not a note", apperr.ErrValidation, p)
	}
	data, err := s.store.Read(p)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return s.note(p, data)
}

// SaveNote overwrites a note's content, creating it (and missing parent
// folders) when absent.
func (s *Service) SaveNote(_ context.Context, p, content string) (*Note, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if !tree.IsNotePath(p) {
		return nil, fmt.Errorf("notebook: %w: %q is not a note", apperr.ErrValidation, p)
	}
	if err := s.store.Write(p, []byte(content)); err != nil {
		return nil, mapStoreErr(err)
	}
	s.autoCommit("Update", p)
	return s.note(p, []byte(content))
}

// CreateNote creates a new note, appending .md when the path carries no
// recognized note extension. The note must not already exist.
func (s *Service) CreateNote(_ context.Context, p, content string) (*Note, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	p = ensureNoteExt(p)
	if err := s.store.Create(p, []byte(content)); err != nil {
		return nil, mapStoreErr(err)
	}
	s.autoCommit("Create", p)
	return s.note(p, []byte(content))
}

// CreateFolder creates an empty folder.
func (s *Service) CreateFolder(_ context.Context, p string) (string, error) {
	p, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	if err := s.store.Mkdir(p); err != nil {
		return "", mapStoreErr(err)
	}
	return p, nil
}

// RenameNote moves a note. The destination gets .md appended when it carries
// no recognized note extension; an existing destination is a conflict.
func (s *Service) RenameNote(_ context.Context, src, dst string) (string, error) {
	src, err := cleanPath(src)
	if err != nil {
		return "", err
	}
	dst, err = cleanPath(dst)
	if err != nil {
		return "", err
	}
	switch {
	case tree.IsImagePath(src):
		if !tree.IsImagePath(dst) {
			return "", fmt.Errorf("notebook: %w: image rename must keep an image extension", apperr.ErrValidation)
		}
	default:
		dst = ensureNoteExt(dst)
	}
	if e, err := s.store.Stat(src); err != nil {
		return "", mapStoreErr(err)
	} else if e.Dir {
		return "", fmt.Errorf("notebook: %w: %q is a folder", apperr.ErrValidation, src)
	}
	if err := s.store.Move(src, dst); err != nil {
		return "", mapStoreErr(err)
	}
	s.autoCommit("Rename", dst)
	return dst, nil
}

// RenameFolder moves a folder and its contents.
func (s *Service) RenameFolder(_ context.Context, src, dst string) (string, error) {
	src, err := cleanPath(src)
	if err != nil {
		return "", err
	}
	dst, err = cleanPath(dst)
	if err != nil {
		return "", err
	}
	if e, err := s.store.Stat(src); err != nil {
		return "", mapStoreErr(err)
	} else if !e.Dir {
		return "", fmt.Errorf("notebook: %w: %q is not a folder", apperr.ErrValidation, src)
	}
	if err := s.store.Move(src, dst); err != nil {
		return "", mapStoreErr(err)
	}
	s.autoCommit("Rename", dst)
	return dst, nil
}

// DeleteNote removes a single note file.
func (s *Service) DeleteNote(_ context.Context, p string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	if err := s.store.Delete(p); err != nil {
		return mapStoreErr(err)
	}
	s.autoCommit("Delete", p)
	return nil
}

// DeleteFolder removes a folder recursively.
func (s *Service) DeleteFolder(_ context.Context, p string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAll(p); err != nil {
		return mapStoreErr(err)
	}
	s.autoCommit("Delete", p)
	return nil
}

// Tree returns a fresh snapshot of the notebook.
func (s *Service) Tree(_ context.Context) (*tree.Node, error) {
	return tree.Build(s.store)
}

// Search scans notes for the query.
func (s *Service) Search(_ context.Context, query string) ([]search.Match, error) {
	return search.Scan(s.store, query)
}

// Settings returns the active notebook settings.
func (s *Service) Settings() settings.Settings {
	return s.settings.Current()
}

// UpdateSettings applies a partial settings patch.
func (s *Service) UpdateSettings(patch []byte) (settings.Settings, error) {
	return s.settings.Update(patch)
}

// ReadImage serves raw image bytes for the file endpoint. Only paths with a
// recognized image extension are readable this way.
func (s *Service) ReadImage(_ context.Context, p string) ([]byte, string, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, "", err
	}
	if !tree.IsImagePath(p) {
		return nil, "", fmt.Errorf("notebook: image %s: %w", p, apperr.ErrNotFound)
	}
	data, err := s.store.Read(p)
	if err != nil {
		return nil, "", mapStoreErr(err)
	}
	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}
