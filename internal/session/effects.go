package session

import "time"

// Effect is a side effect requested by the controller. The caller executes
// it (usually against the HTTP client) and feeds the outcome back through
// the matching Handle method. Effects carrying a Seq must pass it back
// unchanged; the controller uses it to discard stale completions.
type Effect interface{ isEffect() }

// LoadTree requests a fresh tree snapshot. Completed by HandleTreeLoaded.
type LoadTree struct{}

// LoadNote requests the note body and rendered preview for Path.
// Completed by HandleNoteLoaded.
type LoadNote struct {
	Seq  uint64
	Path string
}

// SaveNote writes Content to Path. Completed by HandleSaved with the
// refreshed note returned by the server.
type SaveNote struct {
	Seq     uint64
	Path    string
	Content string
}

// CreateNote creates a new note. Completed by HandleNoteCreated with the
// normalized path chosen by the server.
type CreateNote struct{ Path string }

// CreateFolder creates a new folder. Completed by HandleFolderCreated.
type CreateFolder struct{ Path string }

// RenameNote moves a note. Completed by HandleNoteRenamed.
type RenameNote struct{ SourcePath, DestinationPath string }

// RenameFolder moves a folder and everything under it. Completed by
// HandleFolderRenamed.
type RenameFolder struct{ SourcePath, DestinationPath string }

// DeleteNote removes a note. Completed by HandleNoteDeleted.
type DeleteNote struct{ Path string }

// DeleteFolder removes a folder recursively. Completed by HandleFolderDeleted.
type DeleteFolder struct{ Path string }

// RunSearch executes a full-text search. Completed by HandleSearchResults.
type RunSearch struct {
	Seq   uint64
	Query string
}

// StartDebounce asks the caller to wait Delay and then call DebounceElapsed
// with Seq. Superseded timers are detected by the controller, so the caller
// never needs to cancel one.
type StartDebounce struct {
	Seq   uint64
	Delay time.Duration
}

// SetLocation publishes the settled location. Push distinguishes a new
// history entry from restoring or correcting the current one.
type SetLocation struct {
	Location Location
	Push     bool
}

// PersistLastOpened records Path as the note to reopen next launch.
type PersistLastOpened struct{ Path string }

// ExportNote downloads a standalone HTML rendering of Path. Theme may be
// empty for the configured default. Fire and forget.
type ExportNote struct{ Path, Theme string }

// DownloadNote downloads the raw note file. Fire and forget.
type DownloadNote struct{ Path string }

func (LoadTree) isEffect()          {}
func (LoadNote) isEffect()          {}
func (SaveNote) isEffect()          {}
func (CreateNote) isEffect()        {}
func (CreateFolder) isEffect()      {}
func (RenameNote) isEffect()        {}
func (RenameFolder) isEffect()      {}
func (DeleteNote) isEffect()        {}
func (DeleteFolder) isEffect()      {}
func (RunSearch) isEffect()         {}
func (StartDebounce) isEffect()     {}
func (SetLocation) isEffect()       {}
func (PersistLastOpened) isEffect() {}
func (ExportNote) isEffect()        {}
func (DownloadNote) isEffect()      {}
