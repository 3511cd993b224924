package api

import (
	"github.com/hverdal/quire/internal/notebook"
	"github.com/hverdal/quire/internal/search"
	"github.com/hverdal/quire/internal/settings"
	"github.com/hverdal/quire/internal/tree"
	"github.com/hverdal/quire/internal/vcs"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"projects/rocket.md" validate:"required"`
	Content string `json:"content" example:"# Rocket\nNotes"`
}

// SaveNoteRequest is the request body for overwriting a note's content.
type SaveNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent"`
}

// RenameRequest is the request body for renaming a note or folder.
type RenameRequest struct {
	SourcePath      string `json:"sourcePath" example:"old.md" validate:"required"`
	DestinationPath string `json:"destinationPath" example:"archive/new.md" validate:"required"`
}

// CreateFolderRequest is the request body for creating a folder.
type CreateFolderRequest struct {
	Path string `json:"path" example:"projects/ideas" validate:"required"`
}

// PathResponse returns the resulting path of a create or rename.
type PathResponse struct {
	Path string `json:"path" example:"archive/new.md" validate:"required"`
}

// Note is the full note response type (aliased from the domain layer).
type Note = notebook.Note

// TreeResponse wraps the top-level entries of the notebook tree.
type TreeResponse struct {
	Children []*tree.Node `json:"children" validate:"required"`
}

// SearchResponse wraps search hits, echoing the query they answer.
type SearchResponse struct {
	Query   string         `json:"query" validate:"required"`
	Results []search.Match `json:"results" validate:"required"`
}

// SettingsResponse wraps the notebook settings.
type SettingsResponse struct {
	Settings settings.Settings `json:"settings" validate:"required"`
}

// CleanupRequest selects between reporting and deleting unused images.
// A missing dryRun field means dry run.
type CleanupRequest struct {
	DryRun *bool `json:"dryRun" example:"true"`
}

// CommitRequest is the request body for committing notebook changes.
type CommitRequest struct {
	Message string `json:"message" example:"Update notes"`
}

// GitignoreRequest adds or removes one ignore pattern.
type GitignoreRequest struct {
	Pattern string `json:"pattern" example:"*.tmp" validate:"required"`
	Remove  bool   `json:"remove" example:"false"`
}

// ChangedResponse reports whether a gitignore edit altered the file.
type ChangedResponse struct {
	Changed bool `json:"changed" validate:"required"`
}

// HistoryResponse wraps the commit log.
type HistoryResponse struct {
	Commits []vcs.Commit `json:"commits" validate:"required"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status" example:"ok" validate:"required"`
	Version string `json:"version" example:"1.0.0" validate:"required"`
}
