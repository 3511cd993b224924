package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hverdal/quire/internal/checksum"
	"github.com/hverdal/quire/internal/notebook"
	"github.com/hverdal/quire/internal/search"
	"github.com/hverdal/quire/internal/tree"
	"github.com/hverdal/quire/internal/vcs"
)

const (
	maxNoteBytes   = 10 << 20
	maxUploadBytes = 64 << 20
)

// Handler holds API route handlers.
type Handler struct {
	svc *notebook.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *notebook.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the URL (everything after the route
// prefix). Supports encoded slashes from clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Tree handles GET /api/tree.
//
//	@Summary		Get the notebook tree
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	TreeResponse
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	root, err := h.svc.Tree(r.Context())
	if err != nil {
		writeError(w, err, "build tree")
		return
	}
	children := root.Children
	if children == nil {
		children = []*tree.Node{}
	}
	writeJSON(w, http.StatusOK, TreeResponse{Children: children})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	Note
//	@Failure		404		{object}	errResponse
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		writeError(w, err, "get note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBytes)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path, req.Content)
	if err != nil {
		writeError(w, err, "create note")
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// SaveNote handles PUT /api/notes/*. Saving a missing path creates it.
//
//	@Summary		Save a note's content
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Note path"
//	@Param			body	body		SaveNoteRequest	true	"New content"
//	@Success		200		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Router			/notes/{path} [put]
func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBytes)
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req SaveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	note, err := h.svc.SaveNote(r.Context(), path, req.Content)
	if err != nil {
		writeError(w, err, "save note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// RenameNote handles POST /api/notes/rename.
//
//	@Summary		Rename or move a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenameRequest	true	"Old and new path"
//	@Success		200		{object}	PathResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/notes/rename [post]
func (h *Handler) RenameNote(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.SourcePath == "" || req.DestinationPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("sourcePath and destinationPath are required"))
		return
	}
	dst, err := h.svc.RenameNote(r.Context(), req.SourcePath, req.DestinationPath)
	if err != nil {
		writeError(w, err, "rename note")
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: dst})
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteNote(r.Context(), path); err != nil {
		writeError(w, err, "delete note")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFolderRequest	true	"Folder to create"
//	@Success		201		{object}	PathResponse
//	@Failure		409		{object}	errResponse
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	path, err := h.svc.CreateFolder(r.Context(), req.Path)
	if err != nil {
		writeError(w, err, "create folder")
		return
	}
	writeJSON(w, http.StatusCreated, PathResponse{Path: path})
}

// RenameFolder handles POST /api/folders/rename.
//
//	@Summary		Rename or move a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenameRequest	true	"Old and new path"
//	@Success		200		{object}	PathResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/folders/rename [post]
func (h *Handler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.SourcePath == "" || req.DestinationPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("sourcePath and destinationPath are required"))
		return
	}
	dst, err := h.svc.RenameFolder(r.Context(), req.SourcePath, req.DestinationPath)
	if err != nil {
		writeError(w, err, "rename folder")
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: dst})
}

// DeleteFolder handles DELETE /api/folders/*.
//
//	@Summary		Delete a folder and its contents
//	@Tags			folders
//	@Param			path	path	string	true	"Folder path"
//	@Success		204		"Folder deleted"
//	@Failure		404		{object}	errResponse
//	@Router			/folders/{path} [delete]
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteFolder(r.Context(), path); err != nil {
		writeError(w, err, "delete folder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search. A blank query answers an empty result set.
//
//	@Summary		Search note contents
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	SearchResponse
//	@Failure		422	{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	results, err := h.svc.Search(r.Context(), q)
	if err != nil {
		writeError(w, err, "search")
		return
	}
	if results == nil {
		results = []search.Match{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Get notebook settings
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	SettingsResponse
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: h.svc.Settings()})
}

// UpdateSettings handles PUT /api/settings. The body is a partial settings
// object; omitted fields keep their current values.
//
//	@Summary		Update notebook settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SettingsResponse	true	"Partial settings"
//	@Success		200		{object}	SettingsResponse
//	@Failure		422		{object}	errResponse
//	@Router			/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	updated, err := h.svc.UpdateSettings(raw)
	if err != nil {
		writeError(w, err, "update settings")
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: updated})
}

// ExportNote handles GET /api/export/notes/*. The response is a standalone
// HTML document served as a download.
//
//	@Summary		Export a note as HTML
//	@Tags			export
//	@Produce		html
//	@Param			path	path		string	true	"Note path"
//	@Param			theme	query		string	false	"Export theme"
//	@Success		200		{string}	string	"HTML document"
//	@Failure		404		{object}	errResponse
//	@Router			/export/notes/{path} [get]
func (h *Handler) ExportNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	exp, err := h.svc.ExportNote(r.Context(), path, r.URL.Query().Get("theme"))
	if err != nil {
		writeError(w, err, "export note")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": exp.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, exp.HTML)
}

// ExportArchive handles GET /api/export/archive, streaming the whole notebook
// as a zip file.
//
//	@Summary		Export the notebook as a zip archive
//	@Tags			export
//	@Produce		application/zip
//	@Success		200	{file}	file
//	@Router			/export/archive [get]
func (h *Handler) ExportArchive(w http.ResponseWriter, r *http.Request) {
	name := "notebook-" + time.Now().Format("20060102-150405") + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if err := h.svc.ExportArchive(r.Context(), w); err != nil {
		// Headers are gone; all we can do is log and cut the stream short.
		slog.Error("export archive failed", slog.String("error", err.Error()))
	}
}

// PasteImage handles POST /api/images/paste (multipart/form-data with a
// "file" part and a "notePath" field).
//
//	@Summary		Store a pasted image next to its note
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			notePath	formData	string	true	"Owning note path"
//	@Param			file		formData	file	true	"Image data"
//	@Success		201			{object}	notebook.ImageRef
//	@Failure		413			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Router			/images/paste [post]
func (h *Handler) PasteImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	notePath := r.FormValue("notePath")
	if notePath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("notePath is required"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	ref, err := h.svc.PasteImage(r.Context(), notePath, header.Filename,
		header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, err, "paste image")
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// CleanupImages handles POST /api/images/cleanup. Without an explicit
// {"dryRun": false} the call only reports what would be removed.
//
//	@Summary		Find or delete images no note references
//	@Tags			images
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CleanupRequest	false	"Cleanup options"
//	@Success		200		{object}	notebook.CleanupReport
//	@Router			/images/cleanup [post]
func (h *Handler) CleanupImages(w http.ResponseWriter, r *http.Request) {
	dryRun := true
	if r.ContentLength != 0 {
		var req CleanupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
		if req.DryRun != nil {
			dryRun = *req.DryRun
		}
	}
	report, err := h.svc.CleanupImages(r.Context(), dryRun)
	if err != nil {
		writeError(w, err, "cleanup images")
		return
	}
	if report.CandidatePaths == nil {
		report.CandidatePaths = []string{}
	}
	if report.RemovedPaths == nil {
		report.RemovedPaths = []string{}
	}
	writeJSON(w, http.StatusOK, report)
}

// Commit handles POST /api/versioning/commit.
//
//	@Summary		Commit all notebook changes and push to the remote
//	@Tags			versioning
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CommitRequest	false	"Commit message"
//	@Success		200		{object}	notebook.SyncResult
//	@Router			/versioning/commit [post]
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	res, err := h.svc.CommitAndPush(r.Context(), req.Message)
	if err != nil {
		writeError(w, err, "commit")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Pull handles POST /api/versioning/pull. Conflicts are reported in the
// result body, not as an error status.
//
//	@Summary		Pull notebook changes from the remote
//	@Tags			versioning
//	@Produce		json
//	@Success		200	{object}	vcs.PullResult
//	@Router			/versioning/pull [post]
func (h *Handler) Pull(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.PullNotes(r.Context())
	if err != nil {
		writeError(w, err, "pull")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// History handles GET /api/versioning/history.
//
//	@Summary		List recent commits
//	@Tags			versioning
//	@Produce		json
//	@Param			limit	query		int	false	"Max commits"
//	@Success		200		{object}	HistoryResponse
//	@Router			/versioning/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	commits, err := h.svc.History(r.Context(), limit)
	if err != nil {
		writeError(w, err, "history")
		return
	}
	if commits == nil {
		commits = []vcs.Commit{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Commits: commits})
}

// VersioningStatus handles GET /api/versioning/status.
//
//	@Summary		Report repository state and versioning settings
//	@Tags			versioning
//	@Produce		json
//	@Success		200	{object}	notebook.VersioningStatus
//	@Router			/versioning/status [get]
func (h *Handler) VersioningStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Versioning(r.Context())
	if err != nil {
		writeError(w, err, "versioning status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Gitignore handles POST /api/versioning/gitignore.
//
//	@Summary		Add or remove a .gitignore pattern
//	@Tags			versioning
//	@Accept			json
//	@Produce		json
//	@Param			body	body		GitignoreRequest	true	"Pattern"
//	@Success		200		{object}	ChangedResponse
//	@Failure		422		{object}	errResponse
//	@Router			/versioning/gitignore [post]
func (h *Handler) Gitignore(w http.ResponseWriter, r *http.Request) {
	var req GitignoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	changed, err := h.svc.UpdateGitignore(r.Context(), req.Pattern, req.Remove)
	if err != nil {
		writeError(w, err, "gitignore")
		return
	}
	writeJSON(w, http.StatusOK, ChangedResponse{Changed: changed})
}

// ServeImage handles GET /files/*, serving raw image bytes for previews.
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	data, ct, err := h.svc.ReadImage(r.Context(), path)
	if err != nil {
		writeError(w, err, "serve file")
		return
	}
	etag := `"` + checksum.Sum(data) + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

// Health returns the health check handler.
func Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: version})
	}
}
