package notebook

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hverdal/quire/internal/apperr"
	"github.com/hverdal/quire/internal/checksum"
	"github.com/hverdal/quire/internal/markdown"
	"github.com/hverdal/quire/internal/notestore"
	"github.com/hverdal/quire/internal/settings"
	"github.com/hverdal/quire/internal/vcs"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := notestore.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	st, err := settings.NewStore(store)
	if err != nil {
		t.Fatalf("create settings store: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, markdown.NewRenderer(), st, vcs.NewManager(store.Root(), logger), logger)
}

func mustCreate(t *testing.T, svc *Service, path, content string) *Note {
	t.Helper()
	n, err := svc.CreateNote(context.Background(), path, content)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return n
}

func TestCreateNote_AppendsExtension(t *testing.T) {
	svc := newTestService(t)

	n := mustCreate(t, svc, "ideas/Rocket", "# Rocket\n")
	if n.Path != "ideas/Rocket.md" {
		t.Fatalf("path = %q, want ideas/Rocket.md", n.Path)
	}
	if n.FileType != "markdown" {
		t.Fatalf("fileType = %q, want markdown", n.FileType)
	}
	if !strings.Contains(n.HTML, "<h1") {
		t.Fatalf("html missing heading: %q", n.HTML)
	}
}

func TestCreateNote_KeepsTextExtension(t *testing.T) {
	svc := newTestService(t)

	n := mustCreate(t, svc, "todo.txt", "buy milk")
	if n.Path != "todo.txt" {
		t.Fatalf("path = %q, want todo.txt", n.Path)
	}
	if n.FileType != "text" || n.HTML != "" {
		t.Fatalf("text note got fileType=%q html=%q", n.FileType, n.HTML)
	}
}

func TestCreateNote_Conflict(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "a.md", "one")

	if _, err := svc.CreateNote(context.Background(), "a.md", "two"); !errors.Is(err, apperr.ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.GetNote(context.Background(), "missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetNote_RejectsBadPaths(t *testing.T) {
	svc := newTestService(t)

	for _, p := range []string{"../outside.md", "a/../../b.md", ".quire/settings.json", ""} {
		_, err := svc.GetNote(context.Background(), p)
		if !errors.Is(err, apperr.ErrInvalidPath) && !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("GetNote(%q) err = %v, want invalid path or validation", p, err)
		}
	}
}

func TestSaveNote_CreatesParents(t *testing.T) {
	svc := newTestService(t)

	n, err := svc.SaveNote(context.Background(), "deep/nested/note.md", "body")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if n.Content != "body" {
		t.Fatalf("content = %q", n.Content)
	}
	got, err := svc.GetNote(context.Background(), "deep/nested/note.md")
	if err != nil || got.Content != "body" {
		t.Fatalf("read back: %v, content %q", err, got.Content)
	}
}

func TestRenameNote(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "old.md", "x")

	dst, err := svc.RenameNote(context.Background(), "old.md", "archive/new")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if dst != "archive/new.md" {
		t.Fatalf("dst = %q, want archive/new.md", dst)
	}
	if _, err := svc.GetNote(context.Background(), "old.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("source still readable: %v", err)
	}
}

func TestRenameNote_Conflict(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "a.md", "a")
	mustCreate(t, svc, "b.md", "b")

	if _, err := svc.RenameNote(context.Background(), "a.md", "b.md"); !errors.Is(err, apperr.ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
}

func TestRenameNote_RejectsFolder(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.CreateFolder(context.Background(), "dir"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, err := svc.RenameNote(context.Background(), "dir", "dir2"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestFolderLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateFolder(ctx, "projects"); err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if _, err := svc.CreateFolder(ctx, "projects"); !errors.Is(err, apperr.ErrExists) {
		t.Fatalf("duplicate folder err = %v, want ErrExists", err)
	}
	mustCreate(t, svc, "projects/p.md", "p")

	if _, err := svc.RenameFolder(ctx, "projects", "work"); err != nil {
		t.Fatalf("rename folder: %v", err)
	}
	if _, err := svc.GetNote(ctx, "work/p.md"); err != nil {
		t.Fatalf("note did not move with folder: %v", err)
	}

	if err := svc.DeleteFolder(ctx, "work"); err != nil {
		t.Fatalf("delete folder: %v", err)
	}
	if _, err := svc.GetNote(ctx, "work/p.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("note survived folder delete: %v", err)
	}
}

func TestDeleteNote_FolderRejected(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.CreateFolder(context.Background(), "dir"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := svc.DeleteNote(context.Background(), "dir"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Fatalf("err = %v, want ErrInvalidPath", err)
	}
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

func TestPasteImage_StoredNextToNote(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "docs/plan.md", "# Plan\n")

	ref, err := svc.PasteImage(context.Background(), "docs/plan.md", "Screen Shot.png", "image/png", pngBytes)
	if err != nil {
		t.Fatalf("paste: %v", err)
	}
	short := checksum.Short(pngBytes)
	if want := "docs/Images/Screen-Shot-" + short + ".png"; ref.Path != want {
		t.Fatalf("path = %q, want %q", ref.Path, want)
	}
	if want := "![Screen-Shot](Images/Screen-Shot-" + short + ".png)"; ref.Markdown != want {
		t.Fatalf("markdown = %q, want %q", ref.Markdown, want)
	}

	// Pasting the same bytes again reuses the stored file.
	ref2, err := svc.PasteImage(context.Background(), "docs/plan.md", "Screen Shot.png", "image/png", pngBytes)
	if err != nil {
		t.Fatalf("second paste: %v", err)
	}
	if ref2.Path != ref.Path {
		t.Fatalf("second path = %q, want reuse of %q", ref2.Path, ref.Path)
	}

	// Different bytes under the same name get their own file.
	other := append(append([]byte{}, pngBytes...), 'x')
	ref3, err := svc.PasteImage(context.Background(), "docs/plan.md", "Screen Shot.png", "image/png", other)
	if err != nil {
		t.Fatalf("third paste: %v", err)
	}
	if ref3.Path == ref.Path {
		t.Fatalf("distinct content must not share %q", ref.Path)
	}
}

func TestPasteImage_ExtensionFromSniffedBytes(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "n.md", "")

	ref, err := svc.PasteImage(context.Background(), "n.md", "", "", pngBytes)
	if err != nil {
		t.Fatalf("paste: %v", err)
	}
	if !strings.HasSuffix(ref.Path, ".png") {
		t.Fatalf("path = %q, want .png suffix", ref.Path)
	}
	if !strings.HasPrefix(ref.Path, "Images/") {
		t.Fatalf("root note image went to %q", ref.Path)
	}
}

func TestPasteImage_TooLarge(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "n.md", "")
	if _, err := svc.UpdateSettings([]byte(`{"imageMaxPasteBytes": 1024}`)); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 2048)...)
	if _, err := svc.PasteImage(context.Background(), "n.md", "big.png", "image/png", big); !errors.Is(err, apperr.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestPasteImage_UnsupportedType(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "n.md", "")

	if _, err := svc.PasteImage(context.Background(), "n.md", "payload.exe", "application/octet-stream", []byte("MZ...")); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestPasteImage_ConfiguredStorageFolder(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "docs/plan.md", "")
	if _, err := svc.UpdateSettings([]byte(`{"imageStoragePath": "assets"}`)); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	ref, err := svc.PasteImage(context.Background(), "docs/plan.md", "pic.png", "image/png", pngBytes)
	if err != nil {
		t.Fatalf("paste: %v", err)
	}
	short := checksum.Short(pngBytes)
	if want := "assets/pic-" + short + ".png"; ref.Path != want {
		t.Fatalf("path = %q, want %q", ref.Path, want)
	}
	if want := "![pic](../assets/pic-" + short + ".png)"; ref.Markdown != want {
		t.Fatalf("markdown = %q, want %q", ref.Markdown, want)
	}
}

func TestCleanupImages(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "docs/plan.md", "![used](Images/used.png)\n<img src=\"also used.png\">\n")
	for _, p := range []string{"docs/Images/used.png", "docs/also used.png", "docs/Images/orphan.png", "stray.png"} {
		if err := svc.store.Write(p, pngBytes); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}

	report, err := svc.CleanupImages(ctx, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !report.DryRun || report.TotalImages != 4 || report.ReferencedImages != 2 {
		t.Fatalf("dry run report = %+v", report)
	}
	want := []string{"docs/Images/orphan.png", "stray.png"}
	if len(report.CandidatePaths) != len(want) || report.CandidatePaths[0] != want[0] || report.CandidatePaths[1] != want[1] {
		t.Fatalf("candidates = %v, want %v", report.CandidatePaths, want)
	}
	if len(report.RemovedPaths) != 0 {
		t.Fatalf("dry run removed %v", report.RemovedPaths)
	}
	if _, err := svc.store.Stat("stray.png"); err != nil {
		t.Fatalf("dry run deleted files: %v", err)
	}

	report, err = svc.CleanupImages(ctx, false)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(report.RemovedPaths) != 2 {
		t.Fatalf("removed = %v", report.RemovedPaths)
	}
	if _, err := svc.store.Stat("docs/Images/orphan.png"); err == nil {
		t.Fatal("orphan survived cleanup")
	}
	if _, err := svc.store.Stat("docs/Images/used.png"); err != nil {
		t.Fatalf("referenced image deleted: %v", err)
	}
}

func TestExportNote(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "guide.md", "# Guide\n")

	exp, err := svc.ExportNote(context.Background(), "guide.md", "dark")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.Filename != "guide.html" {
		t.Fatalf("filename = %q", exp.Filename)
	}
	if !strings.HasPrefix(exp.HTML, "<!DOCTYPE html>") || !strings.Contains(exp.HTML, "<h1") {
		t.Fatalf("document malformed: %.80q", exp.HTML)
	}
}

func TestExportNote_MatchAppTheme(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "guide.md", "hello")
	if _, err := svc.UpdateSettings([]byte(`{"theme": "gruvbox-dark"}`)); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	// Default export theme is match-app-theme, so the gruvbox palette shows up.
	exp, err := svc.ExportNote(context.Background(), "guide.md", "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(exp.HTML, "#282828") {
		t.Fatal("export did not follow the app theme")
	}
}

func TestExportNote_UnknownTheme(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "guide.md", "hello")

	if _, err := svc.ExportNote(context.Background(), "guide.md", "sepia"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestExportArchive(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "a.md", "alpha")
	mustCreate(t, svc, "dir/b.md", "beta")
	if err := svc.store.Write("dir/pic.png", pngBytes); err != nil {
		t.Fatalf("seed image: %v", err)
	}
	hidden := filepath.Join(svc.store.Root(), ".quire")
	if err := os.MkdirAll(hidden, 0o755); err != nil {
		t.Fatalf("seed hidden dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hidden, "settings.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("seed hidden file: %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportArchive(context.Background(), &buf); err != nil {
		t.Fatalf("archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		got[f.Name] = string(data)
	}
	if got["a.md"] != "alpha" || got["dir/b.md"] != "beta" {
		t.Fatalf("zip contents = %v", got)
	}
	if _, ok := got["dir/pic.png"]; !ok {
		t.Fatal("image missing from archive")
	}
	for name := range got {
		if strings.HasPrefix(filepath.Base(name), ".") || strings.Contains(name, "/.") {
			t.Errorf("hidden entry %q in archive", name)
		}
	}
}

func TestReadImage(t *testing.T) {
	svc := newTestService(t)
	if err := svc.store.Write("pic.png", pngBytes); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mustCreate(t, svc, "n.md", "secret")

	data, ct, err := svc.ReadImage(context.Background(), "pic.png")
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Fatal("bytes differ")
	}

	// Notes are not served raw.
	if _, _, err := svc.ReadImage(context.Background(), "n.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("note served raw: %v", err)
	}
}

func TestUpdateGitignore_Validation(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.UpdateGitignore(context.Background(), "  ", false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank pattern err = %v, want ErrValidation", err)
	}
	if _, err := svc.UpdateGitignore(context.Background(), "a\nb", false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("multiline pattern err = %v, want ErrValidation", err)
	}
}
