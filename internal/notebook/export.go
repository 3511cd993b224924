package notebook

import (
	"archive/zip"
	"context"
	"fmt"
	"html"
	"io"
	"path"
	"strings"

	"github.com/hverdal/quire/internal/apperr"
	"github.com/hverdal/quire/internal/markdown"
	"github.com/hverdal/quire/internal/notestore"
	"github.com/hverdal/quire/internal/settings"
	"github.com/hverdal/quire/internal/tree"
)

// Export is a rendered standalone document ready to download.
type Export struct {
	Filename string
	HTML     string
}

// ExportNote renders one note as a self-contained HTML document. An empty
// theme uses the notebook's export theme; match-app-theme resolves to the
// application theme.
func (s *Service) ExportNote(ctx context.Context, p, theme string) (*Export, error) {
	note, err := s.GetNote(ctx, p)
	if err != nil {
		return nil, err
	}

	cfg := s.settings.Current()
	if theme == "" {
		theme = cfg.ExportTheme
	}
	if theme == settings.MatchAppTheme {
		theme = cfg.Theme
	}
	if !markdown.KnownTheme(theme) {
		return nil, fmt.Errorf("notebook: %w: unknown export theme %q", apperr.ErrValidation, theme)
	}

	body := note.HTML
	if note.FileType != "markdown" {
		body = "<pre>" + html.EscapeString(note.Content) + "</pre>"
	}
	stem := strings.TrimSuffix(note.Name, path.Ext(note.Name))
	return &Export{
		Filename: stem + ".html",
		HTML:     markdown.ExportDocument(stem, body, theme),
	}, nil
}

// ExportArchive streams a zip of every note and image in the notebook.
func (s *Service) ExportArchive(_ context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)
	err := s.store.Walk(func(e notestore.Entry) error {
		if e.Dir {
			return nil
		}
		if _, ok := tree.KindForEntry(e); !ok {
			return nil
		}
		hdr := &zip.FileHeader{Name: e.Path, Method: zip.Deflate, Modified: e.ModTime}
		f, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		data, err := s.store.Read(e.Path)
		if err != nil {
			return err
		}
		_, err = f.Write(data)
		return err
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("notebook: export archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("notebook: export archive: %w", err)
	}
	return nil
}
