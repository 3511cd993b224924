package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hverdal/quire/internal/markdown"
	"github.com/hverdal/quire/internal/notebook"
	"github.com/hverdal/quire/internal/notestore"
	"github.com/hverdal/quire/internal/settings"
	"github.com/hverdal/quire/internal/vcs"
)

// testEnv sets up a temp notebook, service, and a router mounted the same way
// the server mounts it.
func testEnv(t *testing.T) (*notebook.Service, notestore.Store, http.Handler) {
	t.Helper()

	store, err := notestore.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	st, err := settings.NewStore(store)
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := notebook.NewService(store, markdown.NewRenderer(), st, vcs.NewManager(store.Root(), logger), logger)

	root := chi.NewRouter()
	root.Mount("/api", NewRouter(svc, nil))
	root.Get("/files/*", NewHandler(svc).ServeImage)
	root.Get("/health", Health("test"))
	return svc, store, root
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateAndGetNote(t *testing.T) {
	_, _, router := testEnv(t)

	w := do(t, router, http.MethodPost, "/api/notes", map[string]string{"path": "hello", "content": "# Hello\nWorld"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[Note](t, w)
	if created.Path != "hello.md" {
		t.Errorf("path = %q, want hello.md", created.Path)
	}

	w = do(t, router, http.MethodGet, "/api/notes/hello.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	note := decode[Note](t, w)
	if note.FileType != "markdown" || !strings.Contains(note.HTML, "<h1") {
		t.Errorf("note = %+v", note)
	}
}

func TestCreateNote_MissingPath(t *testing.T) {
	_, _, router := testEnv(t)

	w := do(t, router, http.MethodPost, "/api/notes", map[string]string{"content": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, _, router := testEnv(t)

	body := map[string]string{"path": "dup.md", "content": "a"}
	if w := do(t, router, http.MethodPost, "/api/notes", body); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/api/notes", body); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, _, router := testEnv(t)

	if w := do(t, router, http.MethodGet, "/api/notes/nope.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetNote_EncodedSlash(t *testing.T) {
	svc, _, router := testEnv(t)
	if _, err := svc.CreateNote(context.Background(), "topics/deep.md", "x"); err != nil {
		t.Fatal(err)
	}

	if w := do(t, router, http.MethodGet, "/api/notes/topics%2Fdeep.md", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestGetNote_TraversalRejected(t *testing.T) {
	_, _, router := testEnv(t)

	if w := do(t, router, http.MethodGet, "/api/notes/..%2Fescape.md", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSaveNote_CreatesAndOverwrites(t *testing.T) {
	_, _, router := testEnv(t)

	w := do(t, router, http.MethodPut, "/api/notes/fresh.md", map[string]string{"content": "v1"})
	if w.Code != http.StatusOK {
		t.Fatalf("first save = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPut, "/api/notes/fresh.md", map[string]string{"content": "v2"})
	if w.Code != http.StatusOK {
		t.Fatalf("second save = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/api/notes/fresh.md", nil)
	if note := decode[Note](t, w); note.Content != "v2" {
		t.Errorf("content = %q, want v2", note.Content)
	}
}

func TestSaveNote_InvalidBody(t *testing.T) {
	_, _, router := testEnv(t)

	req := httptest.NewRequest(http.MethodPut, "/api/notes/a.md", strings.NewReader("{broken"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRenameNote(t *testing.T) {
	svc, _, router := testEnv(t)
	ctx := context.Background()
	if _, err := svc.CreateNote(ctx, "a.md", "a"); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodPost, "/api/notes/rename",
		map[string]string{"sourcePath": "a.md", "destinationPath": "archive/b"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	if res := decode[PathResponse](t, w); res.Path != "archive/b.md" {
		t.Errorf("path = %q, want archive/b.md", res.Path)
	}

	w = do(t, router, http.MethodPost, "/api/notes/rename",
		map[string]string{"sourcePath": "missing.md", "destinationPath": "x.md"})
	if w.Code != http.StatusNotFound {
		t.Errorf("rename missing = %d, want 404", w.Code)
	}
}

func TestRenameNote_Conflict(t *testing.T) {
	svc, _, router := testEnv(t)
	ctx := context.Background()
	for _, p := range []string{"a.md", "b.md"} {
		if _, err := svc.CreateNote(ctx, p, p); err != nil {
			t.Fatal(err)
		}
	}

	w := do(t, router, http.MethodPost, "/api/notes/rename",
		map[string]string{"sourcePath": "a.md", "destinationPath": "b.md"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	svc, _, router := testEnv(t)
	if _, err := svc.CreateNote(context.Background(), "gone.md", "x"); err != nil {
		t.Fatal(err)
	}

	if w := do(t, router, http.MethodDelete, "/api/notes/gone.md", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/notes/gone.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/api/notes/gone.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestFolderEndpoints(t *testing.T) {
	svc, _, router := testEnv(t)
	ctx := context.Background()

	w := do(t, router, http.MethodPost, "/api/folders", map[string]string{"path": "projects"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create folder = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/api/folders", map[string]string{"path": "projects"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate folder = %d, want 409", w.Code)
	}

	if _, err := svc.CreateNote(ctx, "projects/p.md", "p"); err != nil {
		t.Fatal(err)
	}
	w = do(t, router, http.MethodPost, "/api/folders/rename",
		map[string]string{"sourcePath": "projects", "destinationPath": "work"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename folder = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/notes/work/p.md", nil); w.Code != http.StatusOK {
		t.Errorf("note after folder rename = %d", w.Code)
	}

	if w := do(t, router, http.MethodDelete, "/api/folders/work", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete folder = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/notes/work/p.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("note after folder delete = %d, want 404", w.Code)
	}
}

func TestTree(t *testing.T) {
	svc, _, router := testEnv(t)
	ctx := context.Background()
	if _, err := svc.CreateNote(ctx, "zeta.md", "z"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateFolder(ctx, "archive"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateNote(ctx, "Alpha.md", "a"); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/api/tree", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tree = %d", w.Code)
	}
	res := decode[TreeResponse](t, w)
	var names []string
	for _, c := range res.Children {
		names = append(names, c.Name)
	}
	want := []string{"archive", "Alpha.md", "zeta.md"}
	if len(names) != len(want) {
		t.Fatalf("children = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("children = %v, want %v", names, want)
		}
	}
}

func TestTree_EmptyNotebook(t *testing.T) {
	_, _, router := testEnv(t)

	w := do(t, router, http.MethodGet, "/api/tree", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tree = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"children":[]`) {
		t.Errorf("empty tree body = %s", w.Body.String())
	}
}

func TestSearch(t *testing.T) {
	svc, _, router := testEnv(t)
	if _, err := svc.CreateNote(context.Background(), "notes/go.md", "Gophers build servers\n"); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/api/search?q=gophers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	res := decode[SearchResponse](t, w)
	if res.Query != "gophers" || len(res.Results) != 1 {
		t.Fatalf("response = %+v", res)
	}
	hit := res.Results[0]
	if hit.Path != "notes/go.md" || hit.LineNumber != 1 || !strings.Contains(hit.LineText, "Gophers") {
		t.Errorf("hit = %+v", hit)
	}
	if !strings.Contains(w.Body.String(), `"lineNumber"`) {
		t.Errorf("body field names = %s", w.Body.String())
	}
}

func TestSearch_BlankAndOverlong(t *testing.T) {
	_, _, router := testEnv(t)

	w := do(t, router, http.MethodGet, "/api/search?q=", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("blank search: code = %d, body = %s", w.Code, w.Body.String())
	}

	long := strings.Repeat("a", 300)
	if w := do(t, router, http.MethodGet, "/api/search?q="+long, nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("overlong search = %d, want 422", w.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	_, _, router := testEnv(t)

	w := do(t, router, http.MethodGet, "/api/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get settings = %d", w.Code)
	}
	if res := decode[SettingsResponse](t, w); res.Settings.TabLength != 4 {
		t.Errorf("default tabLength = %d", res.Settings.TabLength)
	}

	w = do(t, router, http.MethodPut, "/api/settings", map[string]any{"tabLength": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("update settings = %d, body = %s", w.Code, w.Body.String())
	}
	if res := decode[SettingsResponse](t, w); res.Settings.TabLength != 2 {
		t.Errorf("updated tabLength = %d", res.Settings.TabLength)
	}

	if w := do(t, router, http.MethodPut, "/api/settings", map[string]any{"tabLength": 99}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid tabLength = %d, want 422", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/api/settings", map[string]any{"nope": true}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown field = %d, want 422", w.Code)
	}
}

func TestExportNote(t *testing.T) {
	svc, _, router := testEnv(t)
	if _, err := svc.CreateNote(context.Background(), "guide.md", "# Guide\n"); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/api/export/notes/guide.md?theme=dark", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "guide.html") {
		t.Errorf("content disposition = %q", cd)
	}
	if !strings.HasPrefix(w.Body.String(), "<!DOCTYPE html>") {
		t.Errorf("body start = %.40q", w.Body.String())
	}

	if w := do(t, router, http.MethodGet, "/api/export/notes/guide.md?theme=sepia", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown theme = %d, want 422", w.Code)
	}
}

func TestExportArchive(t *testing.T) {
	svc, _, router := testEnv(t)
	if _, err := svc.CreateNote(context.Background(), "dir/a.md", "alpha"); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/api/export/archive", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("archive = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content type = %q", ct)
	}
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "dir/a.md" {
		t.Errorf("zip files = %v", zr.File)
	}
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

func multipartImage(t *testing.T, notePath, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("notePath", notePath); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestPasteImage(t *testing.T) {
	svc, _, router := testEnv(t)
	if _, err := svc.CreateNote(context.Background(), "docs/plan.md", "# Plan"); err != nil {
		t.Fatal(err)
	}

	body, ct := multipartImage(t, "docs/plan.md", "shot.png", pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/api/images/paste", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("paste = %d, body = %s", w.Code, w.Body.String())
	}
	ref := decode[notebook.ImageRef](t, w)
	if !strings.HasPrefix(ref.Path, "docs/Images/shot-") || !strings.HasSuffix(ref.Path, ".png") {
		t.Errorf("ref path = %q", ref.Path)
	}
	if !strings.Contains(ref.Markdown, ref.Name) {
		t.Errorf("markdown %q does not embed %q", ref.Markdown, ref.Name)
	}

	// The stored image is then served raw, with a validator for caching.
	got := do(t, router, http.MethodGet, "/files/"+ref.Path, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("serve pasted image = %d", got.Code)
	}
	etag := got.Header().Get("ETag")
	if etag == "" {
		t.Fatal("served image carries no ETag")
	}
	req = httptest.NewRequest(http.MethodGet, "/files/"+ref.Path, nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}
}

func TestPasteImage_TooLarge(t *testing.T) {
	svc, _, router := testEnv(t)
	ctx := context.Background()
	if _, err := svc.CreateNote(ctx, "n.md", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateSettings([]byte(`{"imageMaxPasteBytes": 1024}`)); err != nil {
		t.Fatal(err)
	}

	big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 4096)...)
	body, ct := multipartImage(t, "n.md", "big.png", big)
	req := httptest.NewRequest(http.MethodPost, "/api/images/paste", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestPasteImage_MissingNotePath(t *testing.T) {
	_, _, router := testEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "x.png")
	_, _ = fw.Write(pngBytes)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/images/paste", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCleanupImages(t *testing.T) {
	svc, store, router := testEnv(t)
	if _, err := svc.CreateNote(context.Background(), "n.md", "no images here"); err != nil {
		t.Fatal(err)
	}
	if err := store.Write("orphan.png", pngBytes); err != nil {
		t.Fatal(err)
	}

	// Default is a dry run.
	w := do(t, router, http.MethodPost, "/api/images/cleanup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cleanup = %d", w.Code)
	}
	report := decode[notebook.CleanupReport](t, w)
	if !report.DryRun || report.UnusedImages != 1 || len(report.RemovedPaths) != 0 {
		t.Fatalf("dry run report = %+v", report)
	}

	w = do(t, router, http.MethodPost, "/api/images/cleanup", map[string]any{"dryRun": false})
	report = decode[notebook.CleanupReport](t, w)
	if report.DryRun || len(report.RemovedPaths) != 1 || report.RemovedPaths[0] != "orphan.png" {
		t.Fatalf("cleanup report = %+v", report)
	}
	if _, err := store.Stat("orphan.png"); err == nil {
		t.Error("orphan still present after cleanup")
	}
}

func TestVersioningEndpoints(t *testing.T) {
	svc, _, router := testEnv(t)
	if _, err := svc.CreateNote(context.Background(), "n.md", "v1"); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/api/versioning/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	st := decode[notebook.VersioningStatus](t, w)
	if st.Repository.Initialized {
		t.Errorf("repository initialized before first commit: %+v", st.Repository)
	}

	w = do(t, router, http.MethodPost, "/api/versioning/commit", map[string]string{"message": "first"})
	if w.Code != http.StatusOK {
		t.Fatalf("commit = %d, body = %s", w.Code, w.Body.String())
	}
	sync := decode[notebook.SyncResult](t, w)
	if !sync.Committed || sync.Pushed {
		t.Errorf("sync = %+v", sync)
	}

	w = do(t, router, http.MethodGet, "/api/versioning/history?limit=5", nil)
	hist := decode[HistoryResponse](t, w)
	if len(hist.Commits) != 1 || hist.Commits[0].Message != "first" {
		t.Errorf("history = %+v", hist.Commits)
	}

	w = do(t, router, http.MethodPost, "/api/versioning/gitignore", map[string]any{"pattern": "*.tmp"})
	if w.Code != http.StatusOK {
		t.Fatalf("gitignore = %d", w.Code)
	}
	if res := decode[ChangedResponse](t, w); !res.Changed {
		t.Error("gitignore add reported no change")
	}

	// No remote configured: pull is a no-op with an explanation.
	w = do(t, router, http.MethodPost, "/api/versioning/pull", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pull = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"skipped"`) {
		t.Errorf("pull body = %s", w.Body.String())
	}
}

func TestServeImage_RejectsNotes(t *testing.T) {
	svc, _, router := testEnv(t)
	if _, err := svc.CreateNote(context.Background(), "secret.md", "hidden"); err != nil {
		t.Fatal(err)
	}

	if w := do(t, router, http.MethodGet, "/files/secret.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHealth(t *testing.T) {
	_, _, router := testEnv(t)

	w := do(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	res := decode[HealthResponse](t, w)
	if res.Status != "ok" || res.Version != "test" {
		t.Errorf("health = %+v", res)
	}
}
