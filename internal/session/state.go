// Package session implements the client-side navigation state machine: which
// note is open, in which mode, with what pending edits. It keeps the tree
// selection, the editor buffer, the preview source and the encoded location
// mutually consistent across user actions and asynchronous completions.
//
// The controller is headless and synchronous. User actions and network
// completions are method calls; side effects (fetches, saves, location
// changes) are returned as Effect values for the caller to execute. All
// asynchronous completions are guarded by sequence numbers so responses
// arriving out of submission order are discarded instead of applied.
package session

import "fmt"

// Mode is the presentation mode of the open note.
type Mode uint8

const (
	// ModeView shows the rendered preview.
	ModeView Mode = iota
	// ModeEdit shows the editable buffer.
	ModeEdit
	// ModeExport is a transient pseudo-mode: it triggers an HTML export and
	// settles back to the persisted mode.
	ModeExport
	// ModeDownload is a transient pseudo-mode for downloading the raw note.
	ModeDownload
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeView:
		return "view"
	case ModeEdit:
		return "edit"
	case ModeExport:
		return "export"
	case ModeDownload:
		return "download"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode converts a wire name back to a Mode. Unknown names are an error
// so callers decide the fallback.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "view":
		return ModeView, nil
	case "edit":
		return ModeEdit, nil
	case "export":
		return ModeExport, nil
	case "download":
		return ModeDownload, nil
	}
	return 0, fmt.Errorf("session: unknown mode %q", s)
}

// persisted reports whether the mode may appear in a settled location.
// Export and download are one-shot actions, never settled state.
func (m Mode) persisted() bool {
	return m == ModeView || m == ModeEdit
}

// NavState is the tuple driving every dependent view.
//
// Invariant: when Path is empty, Mode is ModeView and Dirty is false.
type NavState struct {
	Path  string
	Mode  Mode
	Dirty bool
}

// Empty reports whether no note is open.
func (n NavState) Empty() bool { return n.Path == "" }

// NoteData is the loaded representation of the open note.
type NoteData struct {
	Path     string
	Name     string
	Content  string
	HTML     string
	FileType string
}
