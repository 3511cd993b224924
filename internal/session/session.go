package session

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hverdal/quire/internal/search"
	"github.com/hverdal/quire/internal/tree"
)

// searchDebounce is how long search input must be quiet before a query is
// issued.
const searchDebounce = 250 * time.Millisecond

// ErrRenameRejected reports a rename name that failed validation. The prompt
// stays armed so the user can correct the name.
var ErrRenameRejected = errors.New("session: rename rejected")

type pendingOpen struct {
	seq  uint64
	path string
	mode Mode
	// oneShot carries a transient pseudo-mode (export or download) to fire
	// once the note has settled.
	oneShot Mode
	// record appends the settled location to history; push marks the
	// SetLocation effect as a new entry rather than a replacement. Both are
	// false when restoring via Back or Forward.
	record    bool
	push      bool
	highlight int
}

type pendingSave struct {
	seq  uint64
	path string
	// leaveEditing switches to view on success (save-and-view). Explicit
	// saves keep editing.
	leaveEditing bool
}

// Controller is the single state object behind the client. All methods are
// intended for one goroutine; completions from concurrent requests must be
// funneled into that goroutine before calling the Handle methods.
type Controller struct {
	nav    NavState
	note   *NoteData
	buffer string

	tree      *TreeIndex
	treeError bool

	hist         *history
	lastLocation Location

	banner string

	scrollFraction float64
	highlightLine  int

	renaming string

	noteSeq     uint64
	saveSeq     uint64
	searchSeq   uint64
	debounceSeq uint64

	pendingOpen *pendingOpen
	pendingSave *pendingSave

	// busy tracks paths with a mutating request outstanding; further
	// mutations on those paths are ignored until the completion arrives.
	busy map[string]bool

	searchQuery   string
	searchResults []search.Match
	searching     bool
}

// New returns an empty controller. Call Init to load the tree and restore
// the last location.
func New() *Controller {
	return &Controller{
		nav:  NavState{Mode: ModeView},
		tree: newTreeIndex(),
		hist: newHistory(),
		busy: make(map[string]bool),
	}
}

// Init requests the initial tree and reopens a note: the one named by the
// restored location if any, otherwise the last opened path from the
// previous run.
func (c *Controller) Init(loc Location, lastOpened string) []Effect {
	effects := []Effect{LoadTree{}}
	switch {
	case loc.Path != "":
		mode, oneShot := splitMode(loc.Mode)
		effects = append(effects, c.beginOpen(loc.Path, mode, pendingOpen{
			oneShot: oneShot,
			record:  true,
		})...)
	case lastOpened != "":
		effects = append(effects, c.beginOpen(lastOpened, ModeView, pendingOpen{record: true})...)
	default:
		c.hist.Push(Location{})
	}
	return effects
}

// splitMode separates a requested mode into the mode to settle in and the
// one-shot action to run afterwards.
func splitMode(m Mode) (settled, oneShot Mode) {
	if m.persisted() {
		return m, ModeView
	}
	return ModeView, m
}

func (c *Controller) beginOpen(p string, mode Mode, po pendingOpen) []Effect {
	c.noteSeq++
	po.seq = c.noteSeq
	po.path = p
	po.mode = mode
	c.pendingOpen = &po
	return []Effect{LoadNote{Seq: po.seq, Path: p}}
}

// OpenNote navigates to a note. The current buffer, saved or not, is
// discarded once the new note settles. Opening the already settled note is
// a no-op.
func (c *Controller) OpenNote(p string) []Effect {
	if p == "" {
		return nil
	}
	if c.nav.Path == p && c.pendingOpen == nil {
		return nil
	}
	return c.beginOpen(p, ModeView, pendingOpen{record: true, push: true})
}

// HandleNoteLoaded settles a LoadNote effect. Responses whose seq is not
// the latest are discarded: the user has navigated on since. A failed load
// surfaces a banner and leaves the previous state untouched.
func (c *Controller) HandleNoteLoaded(seq uint64, data *NoteData, err error) []Effect {
	po := c.pendingOpen
	if po == nil || seq != po.seq {
		return nil
	}
	c.pendingOpen = nil
	if err != nil {
		c.banner = fmt.Sprintf("Unable to open %s: %v", po.path, err)
		return nil
	}

	c.note = data
	c.nav = NavState{Path: data.Path, Mode: po.mode}
	if po.mode == ModeEdit {
		c.buffer = data.Content
	} else {
		c.buffer = ""
	}
	c.highlightLine = po.highlight
	c.scrollFraction = 0
	c.tree.Select(data.Path)

	loc := Location{Path: data.Path, Mode: po.mode}
	c.lastLocation = loc
	if po.record {
		c.hist.Push(loc)
	}
	effects := []Effect{
		SetLocation{Location: loc, Push: po.push},
		PersistLastOpened{Path: data.Path},
	}
	switch po.oneShot {
	case ModeExport:
		effects = append(effects, ExportNote{Path: data.Path})
	case ModeDownload:
		effects = append(effects, DownloadNote{Path: data.Path})
	}
	return effects
}

// ToggleMode switches between preview and editor. Entering the editor loads
// the raw content into the buffer; leaving it saves the buffer first and
// only settles in view mode once the save succeeds.
func (c *Controller) ToggleMode() []Effect {
	if c.nav.Empty() || c.note == nil || c.busy[c.nav.Path] {
		return nil
	}
	switch c.nav.Mode {
	case ModeEdit:
		return c.saveBuffer(true)
	default:
		c.buffer = c.note.Content
		c.nav.Mode = ModeEdit
		c.nav.Dirty = false
		loc := Location{Path: c.nav.Path, Mode: ModeEdit}
		c.lastLocation = loc
		c.hist.Push(loc)
		return []Effect{SetLocation{Location: loc, Push: true}}
	}
}

// UpdateBuffer replaces the editor buffer after a keystroke. The preview is
// re-rendered from the buffer by the caller; no request is issued.
func (c *Controller) UpdateBuffer(content string) {
	if c.nav.Empty() || c.nav.Mode != ModeEdit {
		return
	}
	c.buffer = content
	c.nav.Dirty = c.note == nil || content != c.note.Content
}

// Save writes the buffer without leaving the editor. A clean buffer is not
// re-sent, so periodic autosave ticks are free when nothing changed.
func (c *Controller) Save() []Effect {
	if !c.nav.Dirty {
		return nil
	}
	return c.saveBuffer(false)
}

func (c *Controller) saveBuffer(leaveEditing bool) []Effect {
	if c.nav.Empty() || c.nav.Mode != ModeEdit || c.busy[c.nav.Path] {
		return nil
	}
	c.saveSeq++
	c.pendingSave = &pendingSave{seq: c.saveSeq, path: c.nav.Path, leaveEditing: leaveEditing}
	c.busy[c.nav.Path] = true
	return []Effect{SaveNote{Seq: c.saveSeq, Path: c.nav.Path, Content: c.buffer}}
}

// HandleSaved settles a SaveNote effect with the refreshed note returned by
// the server. On failure the editor keeps the buffer and mode so no edit is
// lost.
func (c *Controller) HandleSaved(seq uint64, data *NoteData, err error) []Effect {
	ps := c.pendingSave
	if ps == nil || seq != ps.seq {
		return nil
	}
	c.pendingSave = nil
	delete(c.busy, ps.path)
	if err != nil {
		c.banner = fmt.Sprintf("Save failed: %v", err)
		return nil
	}
	if c.nav.Path != ps.path || c.nav.Mode != ModeEdit {
		return nil
	}

	c.note = data
	if !ps.leaveEditing {
		c.nav.Dirty = c.buffer != data.Content
		return nil
	}
	c.nav.Mode = ModeView
	c.nav.Dirty = false
	c.buffer = ""
	loc := Location{Path: ps.path, Mode: ModeView}
	c.lastLocation = loc
	c.hist.Push(loc)
	return []Effect{SetLocation{Location: loc, Push: true}}
}

// SelectNode reacts to activating a tree row: folders toggle, notes open,
// images only move the highlight.
func (c *Controller) SelectNode(p string) []Effect {
	n := c.tree.Find(p)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case tree.KindFolder:
		c.tree.Toggle(p)
		return nil
	case tree.KindNote:
		return c.OpenNote(p)
	default:
		c.tree.Select(p)
		return nil
	}
}

// Back re-fetches the previous settled location. The restored entry is not
// pushed again, so history does not grow.
func (c *Controller) Back() []Effect {
	loc, ok := c.hist.Back()
	if !ok {
		return nil
	}
	return c.restore(loc)
}

// Forward is the inverse of Back.
func (c *Controller) Forward() []Effect {
	loc, ok := c.hist.Forward()
	if !ok {
		return nil
	}
	return c.restore(loc)
}

func (c *Controller) restore(loc Location) []Effect {
	if loc.Path == "" {
		c.clearNote()
		c.lastLocation = Location{}
		return []Effect{SetLocation{Location: Location{}}}
	}
	mode, _ := splitMode(loc.Mode)
	return c.beginOpen(loc.Path, mode, pendingOpen{})
}

func (c *Controller) clearNote() {
	c.nav = NavState{Mode: ModeView}
	c.note = nil
	c.buffer = ""
	c.highlightLine = 0
	c.scrollFraction = 0
	c.pendingOpen = nil
	c.tree.Select("")
}

// NewNote creates a note at p, which may include folder segments. The
// server appends the markdown extension when p has no recognized one.
func (c *Controller) NewNote(p string) []Effect {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		c.banner = "A note name is required"
		return nil
	}
	if strings.Contains(p, "\\") {
		c.banner = "Note names cannot contain backslashes"
		return nil
	}
	if c.busy[p] {
		return nil
	}
	c.busy[p] = true
	return []Effect{CreateNote{Path: p}}
}

// HandleNoteCreated settles a CreateNote effect. created is the normalized
// path chosen by the server; the tree is reloaded and the new note opened
// in the editor.
func (c *Controller) HandleNoteCreated(requested, created string, err error) []Effect {
	delete(c.busy, requested)
	if err != nil {
		c.banner = fmt.Sprintf("Unable to create %s: %v", requested, err)
		return nil
	}
	c.tree.Select(created)
	effects := []Effect{LoadTree{}}
	return append(effects, c.beginOpen(created, ModeEdit, pendingOpen{record: true, push: true})...)
}

// NewFolder creates a folder at p.
func (c *Controller) NewFolder(p string) []Effect {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		c.banner = "A folder name is required"
		return nil
	}
	if strings.Contains(p, "\\") {
		c.banner = "Folder names cannot contain backslashes"
		return nil
	}
	if c.busy[p] {
		return nil
	}
	c.busy[p] = true
	return []Effect{CreateFolder{Path: p}}
}

// HandleFolderCreated settles a CreateFolder effect. The new folder is
// selected once the reloaded tree contains it.
func (c *Controller) HandleFolderCreated(requested, created string, err error) []Effect {
	delete(c.busy, requested)
	if err != nil {
		c.banner = fmt.Sprintf("Unable to create %s: %v", requested, err)
		return nil
	}
	c.tree.Select(created)
	return []Effect{LoadTree{}}
}

// BeginRename arms the rename prompt for the node at p and returns the
// current name to prefill it.
func (c *Controller) BeginRename(p string) (string, bool) {
	n := c.tree.Find(p)
	if n == nil {
		return "", false
	}
	c.renaming = p
	return n.Name, true
}

// Renaming returns the path with an armed rename prompt, or "".
func (c *Controller) Renaming() string { return c.renaming }

// CancelRename disarms the prompt.
func (c *Controller) CancelRename() { c.renaming = "" }

// CommitRename validates the new name and emits the rename request. A
// rejected name returns an error wrapping ErrRenameRejected and keeps the
// prompt armed. Renames move within the parent folder only, so names with
// slashes are rejected; notes get the markdown extension appended, images
// keep their original extension unless the new name supplies one.
func (c *Controller) CommitRename(p, newName string) ([]Effect, error) {
	n := c.tree.Find(p)
	if n == nil {
		c.renaming = ""
		return nil, fmt.Errorf("%w: %s no longer exists", ErrRenameRejected, p)
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, fmt.Errorf("%w: a name is required", ErrRenameRejected)
	}
	if strings.ContainsAny(newName, "/\\") {
		return nil, fmt.Errorf("%w: names cannot contain slashes", ErrRenameRejected)
	}
	switch n.Kind {
	case tree.KindNote:
		if !tree.IsNotePath(newName) {
			newName += ".md"
		}
	case tree.KindImage:
		if !tree.IsImagePath(newName) {
			newName += path.Ext(p)
		}
	}
	dst := newName
	if dir := path.Dir(p); dir != "." {
		dst = dir + "/" + newName
	}
	if dst == p {
		c.renaming = ""
		return nil, nil
	}
	if c.busy[p] {
		return nil, fmt.Errorf("%w: a rename is already in progress", ErrRenameRejected)
	}
	c.busy[p] = true
	c.renaming = ""
	if n.Kind == tree.KindFolder {
		return []Effect{RenameFolder{SourcePath: p, DestinationPath: dst}}, nil
	}
	return []Effect{RenameNote{SourcePath: p, DestinationPath: dst}}, nil
}

// HandleNoteRenamed settles a RenameNote effect. When the open note was the
// one renamed, the session follows it to the new path in view mode.
func (c *Controller) HandleNoteRenamed(src, dst string, err error) []Effect {
	delete(c.busy, src)
	if err != nil {
		c.banner = fmt.Sprintf("Unable to rename %s: %v", src, err)
		return nil
	}
	effects := []Effect{LoadTree{}}
	c.tree.Select(dst)
	if c.nav.Path == src {
		effects = append(effects, c.followRename(dst)...)
	}
	return effects
}

// HandleFolderRenamed settles a RenameFolder effect, rewriting the open
// note's path and the expansion keys under the old prefix.
func (c *Controller) HandleFolderRenamed(src, dst string, err error) []Effect {
	delete(c.busy, src)
	if err != nil {
		c.banner = fmt.Sprintf("Unable to rename %s: %v", src, err)
		return nil
	}
	var moved []string
	for p := range c.tree.expanded {
		if p == src || strings.HasPrefix(p, src+"/") {
			moved = append(moved, p)
		}
	}
	for _, p := range moved {
		open := c.tree.expanded[p]
		delete(c.tree.expanded, p)
		c.tree.expanded[dst+strings.TrimPrefix(p, src)] = open
	}
	effects := []Effect{LoadTree{}}
	switch {
	case c.nav.Path == src || strings.HasPrefix(c.nav.Path, src+"/"):
		moved := dst + strings.TrimPrefix(c.nav.Path, src)
		c.tree.Select(moved)
		effects = append(effects, c.followRename(moved)...)
	case c.tree.Selected() == src || strings.HasPrefix(c.tree.Selected(), src+"/"):
		c.tree.Select(dst + strings.TrimPrefix(c.tree.Selected(), src))
	default:
		c.tree.Select(dst)
	}
	return effects
}

func (c *Controller) followRename(dst string) []Effect {
	c.nav = NavState{Path: dst, Mode: ModeView}
	c.buffer = ""
	if c.note != nil {
		c.note.Path = dst
		c.note.Name = path.Base(dst)
	}
	loc := Location{Path: dst, Mode: ModeView}
	c.lastLocation = loc
	c.hist.Push(loc)
	return []Effect{
		SetLocation{Location: loc, Push: true},
		PersistLastOpened{Path: dst},
	}
}

// Delete removes the node at p, note or folder.
func (c *Controller) Delete(p string) []Effect {
	n := c.tree.Find(p)
	if n == nil || c.busy[p] {
		return nil
	}
	c.busy[p] = true
	if n.Kind == tree.KindFolder {
		return []Effect{DeleteFolder{Path: p}}
	}
	return []Effect{DeleteNote{Path: p}}
}

// HandleNoteDeleted settles a DeleteNote effect. Deleting the open note
// clears the session back to the empty state.
func (c *Controller) HandleNoteDeleted(p string, err error) []Effect {
	delete(c.busy, p)
	if err != nil {
		c.banner = fmt.Sprintf("Unable to delete %s: %v", p, err)
		return nil
	}
	return c.afterDelete(c.nav.Path == p, p)
}

// HandleFolderDeleted settles a DeleteFolder effect.
func (c *Controller) HandleFolderDeleted(p string, err error) []Effect {
	delete(c.busy, p)
	if err != nil {
		c.banner = fmt.Sprintf("Unable to delete %s: %v", p, err)
		return nil
	}
	gone := c.nav.Path == p || strings.HasPrefix(c.nav.Path, p+"/")
	return c.afterDelete(gone, p)
}

func (c *Controller) afterDelete(clearedCurrent bool, p string) []Effect {
	effects := []Effect{LoadTree{}}
	if sel := c.tree.Selected(); sel == p || strings.HasPrefix(sel, p+"/") {
		c.tree.Select("")
	}
	if clearedCurrent {
		c.clearNote()
		c.lastLocation = Location{}
		c.hist.Push(Location{})
		effects = append(effects,
			SetLocation{Location: Location{}, Push: true},
			PersistLastOpened{},
		)
	}
	return effects
}

// ReloadTree requests a fresh snapshot, keeping expansion and selection.
// Change notifications from the server funnel through here.
func (c *Controller) ReloadTree() []Effect {
	return []Effect{LoadTree{}}
}

// RefreshCurrent re-fetches the open note after an external change
// notification. It only applies in view mode; a buffer being edited is
// never clobbered by a refresh.
func (c *Controller) RefreshCurrent() []Effect {
	if c.nav.Empty() || c.nav.Mode != ModeView {
		return nil
	}
	return c.beginOpen(c.nav.Path, ModeView, pendingOpen{})
}

// HandleTreeLoaded installs a tree snapshot. A failed load keeps the
// previous snapshot and flags the pane so it can show a placeholder.
func (c *Controller) HandleTreeLoaded(children []*tree.Node, err error) {
	if err != nil {
		c.treeError = true
		return
	}
	c.treeError = false
	c.tree.ApplySnapshot(children)
}

// SearchInput records a keystroke in the search box and restarts the
// debounce window. Clearing the box clears the results without a request.
func (c *Controller) SearchInput(q string) []Effect {
	c.searchQuery = q
	c.debounceSeq++
	if strings.TrimSpace(q) == "" {
		c.searchResults = nil
		c.searching = false
		return nil
	}
	return []Effect{StartDebounce{Seq: c.debounceSeq, Delay: searchDebounce}}
}

// DebounceElapsed fires when a StartDebounce timer ends. Timers superseded
// by further typing are ignored.
func (c *Controller) DebounceElapsed(seq uint64) []Effect {
	if seq != c.debounceSeq {
		return nil
	}
	return c.submitSearch()
}

// SubmitSearch issues the query immediately, cancelling the debounce.
func (c *Controller) SubmitSearch() []Effect {
	c.debounceSeq++
	return c.submitSearch()
}

func (c *Controller) submitSearch() []Effect {
	q := strings.TrimSpace(c.searchQuery)
	if q == "" {
		return nil
	}
	c.searchSeq++
	c.searching = true
	return []Effect{RunSearch{Seq: c.searchSeq, Query: q}}
}

// HandleSearchResults installs results for the latest query. Results for
// superseded queries are discarded even when they arrive after the latest
// response.
func (c *Controller) HandleSearchResults(seq uint64, results []search.Match, err error) {
	if seq != c.searchSeq {
		return
	}
	c.searching = false
	if err != nil {
		c.banner = fmt.Sprintf("Search failed: %v", err)
		return
	}
	c.searchResults = results
}

// OpenSearchResult opens the owning note in the editor, scrolled to the
// matching line. When the note is already open only the highlight moves.
func (c *Controller) OpenSearchResult(m search.Match) []Effect {
	if c.nav.Path == m.Path && c.pendingOpen == nil {
		c.highlightLine = m.LineNumber
		return nil
	}
	return c.beginOpen(m.Path, ModeEdit, pendingOpen{
		record:    true,
		push:      true,
		highlight: m.LineNumber,
	})
}

// ExportCurrent downloads the open note as standalone HTML. An empty theme
// uses the configured default.
func (c *Controller) ExportCurrent(theme string) []Effect {
	if c.nav.Empty() {
		return nil
	}
	return []Effect{ExportNote{Path: c.nav.Path, Theme: theme}}
}

// DownloadCurrent downloads the open note's raw file.
func (c *Controller) DownloadCurrent() []Effect {
	if c.nav.Empty() {
		return nil
	}
	return []Effect{DownloadNote{Path: c.nav.Path}}
}

// DismissBanner clears the error banner.
func (c *Controller) DismissBanner() { c.banner = "" }

// SetScrollFraction records how far down the active surface is scrolled,
// as a fraction of its scrollable span. The fraction survives mode toggles
// so editor and preview stay aligned.
func (c *Controller) SetScrollFraction(f float64) {
	switch {
	case f < 0:
		f = 0
	case f > 1:
		f = 1
	}
	c.scrollFraction = f
}

// Nav returns the current navigation tuple.
func (c *Controller) Nav() NavState { return c.nav }

// Note returns the loaded note, or nil in the empty state.
func (c *Controller) Note() *NoteData { return c.note }

// Buffer returns the editor buffer.
func (c *Controller) Buffer() string { return c.buffer }

// Tree returns the tree index for rendering.
func (c *Controller) Tree() *TreeIndex { return c.tree }

// TreeUnavailable reports that the last tree load failed.
func (c *Controller) TreeUnavailable() bool { return c.treeError }

// Banner returns the active error banner, or "".
func (c *Controller) Banner() string { return c.banner }

// CurrentLocation returns the last settled location.
func (c *Controller) CurrentLocation() Location { return c.lastLocation }

// HighlightLine returns the 1-based line to highlight, or 0.
func (c *Controller) HighlightLine() int { return c.highlightLine }

// ScrollFraction returns the recorded scroll position.
func (c *Controller) ScrollFraction() float64 { return c.scrollFraction }

// Busy reports whether a mutating request for p is outstanding. Views
// disable the matching controls while it is.
func (c *Controller) Busy(p string) bool { return c.busy[p] }

// Loading reports whether a note load is in flight.
func (c *Controller) Loading() bool { return c.pendingOpen != nil }

// SearchQuery returns the search box content.
func (c *Controller) SearchQuery() string { return c.searchQuery }

// SearchResults returns the results of the latest settled query.
func (c *Controller) SearchResults() []search.Match { return c.searchResults }

// Searching reports whether a query is in flight.
func (c *Controller) Searching() bool { return c.searching }
