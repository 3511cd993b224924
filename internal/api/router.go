// Package api implements the notebook REST API using chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hverdal/quire/internal/notebook"
)

// NewRouter creates a chi router with all API routes mounted.
// events, if non-nil, is mounted at GET /events for change notifications.
func NewRouter(svc *notebook.Service, events http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	// Tree snapshot.
	r.Get("/tree", h.Tree)

	// Notes CRUD. Rename is registered before the wildcard so chi does not
	// swallow it as a note path.
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/rename", h.RenameNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.SaveNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Folders.
	r.Post("/folders", h.CreateFolder)
	r.Post("/folders/rename", h.RenameFolder)
	r.Delete("/folders/*", h.DeleteFolder)

	// Search.
	r.Get("/search", h.Search)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	// Exports.
	r.Get("/export/archive", h.ExportArchive)
	r.Get("/export/notes/*", h.ExportNote)

	// Images.
	r.Post("/images/paste", h.PasteImage)
	r.Post("/images/cleanup", h.CleanupImages)

	// Versioning.
	r.Post("/versioning/commit", h.Commit)
	r.Post("/versioning/pull", h.Pull)
	r.Get("/versioning/history", h.History)
	r.Get("/versioning/status", h.VersioningStatus)
	r.Post("/versioning/gitignore", h.Gitignore)

	// SSE change feed.
	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}
