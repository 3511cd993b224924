// Package tui is the terminal client. It speaks to a running server through
// internal/client and keeps every screen transition inside a
// session.Controller; the bubbletea program here only translates key presses
// into controller calls and controller effects into commands.
package tui

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/hverdal/quire/internal/client"
	"github.com/hverdal/quire/internal/session"
	"github.com/hverdal/quire/internal/tree"
)

type focusArea int

const (
	focusTree focusArea = iota
	focusContent
	focusSearch
)

type eventsRetryMsg struct{}

const eventsRetryAfter = 5 * time.Second

// Model is the bubbletea model for the whole client.
type Model struct {
	api       *client.Client
	sess      *session.Controller
	stateFile string
	state     clientState

	events <-chan client.Event

	width  int
	height int
	ready  bool

	focus        focusArea
	cursor       int
	searchCursor int

	viewport viewport.Model
	editor   textarea.Model
	search   textinput.Model
	prompt   *prompt

	renderer *glamour.TermRenderer

	tabLength     int
	autosaveEvery time.Duration

	status   string
	statusID int
}

// New builds the model. A corrupt state file is ignored rather than blocking
// the launch.
func New(api *client.Client, stateFile string) *Model {
	st, err := loadClientState(stateFile)
	if err != nil {
		st = clientState{}
	}

	editor := textarea.New()
	editor.CharLimit = 0
	editor.MaxHeight = 0
	editor.ShowLineNumbers = true

	searchInput := textinput.New()
	searchInput.Prompt = "/ "
	searchInput.Placeholder = "search notes"
	searchInput.CharLimit = 256

	return &Model{
		api:       api,
		sess:      session.New(),
		stateFile: stateFile,
		state:     st,
		editor:    editor,
		search:    searchInput,
		tabLength: 4,
	}
}

func (m *Model) Init() tea.Cmd {
	loc, err := session.ParseLocation(m.state.Location)
	if err != nil {
		loc = session.Location{}
	}
	return tea.Batch(
		m.execute(m.sess.Init(loc, m.state.LastOpened)),
		m.fetchSettingsCmd(),
		m.connectEventsCmd(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case treeLoadedMsg:
		m.sess.HandleTreeLoaded(msg.children, msg.err)
		m.clampCursor()
		if m.focus != focusTree {
			m.followSelection()
		}
		return m, nil

	case noteLoadedMsg:
		cmd := m.execute(m.sess.HandleNoteLoaded(msg.seq, msg.data, msg.err))
		m.syncContent()
		m.followSelection()
		if msg.err == nil && msg.data != nil && m.sess.Nav().Path == msg.data.Path &&
			m.sess.Nav().Mode == session.ModeEdit {
			m.focus = focusContent
			return m, tea.Batch(cmd, m.editor.Focus())
		}
		return m, cmd

	case savedMsg:
		cmd := m.execute(m.sess.HandleSaved(msg.seq, msg.data, msg.err))
		m.syncContent()
		return m, cmd

	case noteCreatedMsg:
		return m, m.execute(m.sess.HandleNoteCreated(msg.requested, msg.created, msg.err))

	case folderCreatedMsg:
		return m, m.execute(m.sess.HandleFolderCreated(msg.requested, msg.created, msg.err))

	case noteRenamedMsg:
		cmd := m.execute(m.sess.HandleNoteRenamed(msg.src, msg.dst, msg.err))
		m.syncContent()
		return m, cmd

	case folderRenamedMsg:
		cmd := m.execute(m.sess.HandleFolderRenamed(msg.src, msg.dst, msg.err))
		m.syncContent()
		return m, cmd

	case noteDeletedMsg:
		if msg.err == nil {
			m.state.dropRecent(msg.path)
			m.persistState()
		}
		cmd := m.execute(m.sess.HandleNoteDeleted(msg.path, msg.err))
		m.syncContent()
		return m, cmd

	case folderDeletedMsg:
		if msg.err == nil {
			m.state.dropRecent(msg.path)
			m.persistState()
		}
		cmd := m.execute(m.sess.HandleFolderDeleted(msg.path, msg.err))
		m.syncContent()
		return m, cmd

	case debounceMsg:
		return m, m.execute(m.sess.DebounceElapsed(msg.seq))

	case searchResultsMsg:
		m.sess.HandleSearchResults(msg.seq, msg.results, msg.err)
		m.searchCursor = 0
		return m, nil

	case settingsMsg:
		if msg.err != nil {
			return m, nil
		}
		if msg.settings.TabLength > 0 {
			m.tabLength = msg.settings.TabLength
		}
		if secs := msg.settings.AutoSaveIntervalSeconds; secs > 0 {
			m.autosaveEvery = time.Duration(secs) * time.Second
			return m, autosaveTick(m.autosaveEvery)
		}
		return m, nil

	case autosaveTickMsg:
		if m.autosaveEvery <= 0 {
			return m, nil
		}
		var save tea.Cmd
		if m.sess.Nav().Mode == session.ModeEdit && m.sess.Nav().Dirty {
			save = m.execute(m.sess.Save())
		}
		return m, tea.Batch(save, autosaveTick(m.autosaveEvery))

	case exportDoneMsg:
		if msg.err != nil {
			return m, m.setStatus(fmt.Sprintf("Export failed: %v", msg.err))
		}
		return m, m.setStatus("Exported " + msg.filename)

	case downloadDoneMsg:
		if msg.err != nil {
			return m, m.setStatus(fmt.Sprintf("Download failed: %v", msg.err))
		}
		return m, m.setStatus("Saved " + msg.filename)

	case commitDoneMsg:
		if msg.err != nil {
			return m, m.setStatus(fmt.Sprintf("Commit failed: %v", msg.err))
		}
		if !msg.result.Committed {
			return m, m.setStatus("Nothing to commit")
		}
		s := "Committed"
		if len(msg.result.Hash) >= 7 {
			s += " " + msg.result.Hash[:7]
		}
		if msg.result.Pushed {
			s += ", pushed"
		}
		return m, m.setStatus(s)

	case pullDoneMsg:
		if msg.err != nil {
			return m, m.setStatus(fmt.Sprintf("Pull failed: %v", msg.err))
		}
		r := msg.result
		switch r.Status {
		case "ok":
			return m, m.setStatus("Pulled: " + r.Detail)
		case "skipped":
			return m, m.setStatus("Pull skipped: " + r.Detail)
		case "conflict":
			return m, m.setStatus("Pull conflict, local work parked on " + r.ConflictBranch)
		default:
			return m, m.setStatus("Pull error: " + r.Detail)
		}

	case eventsReadyMsg:
		m.events = msg.ch
		return m, waitForEvent(msg.ch)

	case serverEventMsg:
		var cmds []tea.Cmd
		switch msg.Type {
		case "tree.changed":
			cmds = append(cmds, m.execute(m.sess.ReloadTree()))
		case "note.updated":
			if msg.Path == m.sess.Nav().Path {
				cmds = append(cmds, m.execute(m.sess.RefreshCurrent()))
			}
		}
		cmds = append(cmds, waitForEvent(m.events))
		return m, tea.Batch(cmds...)

	case eventsClosedMsg:
		m.events = nil
		return m, tea.Tick(eventsRetryAfter, func(time.Time) tea.Msg { return eventsRetryMsg{} })

	case eventsRetryMsg:
		return m, m.connectEventsCmd()

	case statusExpiredMsg:
		if msg.id == m.statusID {
			m.status = ""
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = msg.Width, msg.Height
	cw, ch := m.contentSize()
	if !m.ready {
		m.viewport = viewport.New(cw, ch)
		m.ready = true
	} else {
		m.viewport.Width = cw
		m.viewport.Height = ch
	}
	m.editor.SetWidth(cw)
	m.editor.SetHeight(ch)
	m.search.Width = m.treeWidth() - 4

	if r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(cw-2, 20)),
	); err == nil {
		m.renderer = r
	}
	m.syncContent()
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.prompt != nil {
		return m.handlePromptKey(msg)
	}
	if m.focus == focusSearch {
		return m.handleSearchKey(msg)
	}
	if m.focus == focusContent && m.sess.Nav().Mode == session.ModeEdit {
		return m.handleEditorKey(msg)
	}
	return m.handleBrowseKey(msg)
}

func (m *Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.prompt
	if p.confirm() {
		switch msg.String() {
		case "y", "Y", "enter":
			m.prompt = nil
			if p.kind == promptQuitConfirm {
				return m, tea.Quit
			}
			return m, m.execute(m.sess.Delete(p.target))
		case "n", "N", "esc":
			m.prompt = nil
		}
		return m, nil
	}

	switch msg.String() {
	case "esc":
		if p.kind == promptRename {
			m.sess.CancelRename()
		}
		m.prompt = nil
		return m, nil
	case "enter":
		return m.commitPrompt(p)
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return m, cmd
}

func (m *Model) commitPrompt(p *prompt) (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(p.input.Value())
	switch p.kind {
	case promptNewNote:
		m.prompt = nil
		return m, m.execute(m.sess.NewNote(value))
	case promptNewFolder:
		m.prompt = nil
		return m, m.execute(m.sess.NewFolder(value))
	case promptRename:
		effects, err := m.sess.CommitRename(p.target, value)
		if err != nil {
			return m, m.setStatus(fmt.Sprintf("%v", err))
		}
		m.prompt = nil
		return m, m.execute(effects)
	case promptCommit:
		m.prompt = nil
		return m, m.commitCmd(value)
	}
	m.prompt = nil
	return m, nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	results := m.sess.SearchResults()
	switch msg.String() {
	case "esc":
		m.search.Blur()
		m.search.SetValue("")
		m.focus = focusTree
		return m, m.execute(m.sess.SearchInput(""))
	case "up":
		if m.searchCursor > 0 {
			m.searchCursor--
		}
		return m, nil
	case "down":
		if m.searchCursor < len(results)-1 {
			m.searchCursor++
		}
		return m, nil
	case "enter":
		if len(results) > 0 {
			hit := results[min(m.searchCursor, len(results)-1)]
			m.search.Blur()
			m.focus = focusContent
			cmd := m.execute(m.sess.OpenSearchResult(hit))
			m.jumpToHighlight()
			return m, cmd
		}
		return m, m.execute(m.sess.SubmitSearch())
	case "tab":
		m.search.Blur()
		m.focus = focusTree
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, tea.Batch(cmd, m.execute(m.sess.SearchInput(m.search.Value())))
}

func (m *Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.sess.Banner() != "" {
			m.sess.DismissBanner()
			return m, nil
		}
		m.sess.SetScrollFraction(session.ScrollFractionAt(
			m.editor.Line(), m.editor.LineCount(), 1,
		))
		cmd := m.execute(m.sess.ToggleMode())
		m.syncContent()
		return m, cmd
	case "ctrl+s":
		return m, m.execute(m.sess.Save())
	case "shift+tab":
		m.editor.Blur()
		m.focus = focusTree
		return m, nil
	case "tab":
		m.editor.InsertString(strings.Repeat(" ", m.tabLength))
		m.sess.UpdateBuffer(m.editor.Value())
		return m, nil
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	m.sess.UpdateBuffer(m.editor.Value())
	return m, cmd
}

func (m *Model) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.sess.Tree().Rows()

	switch msg.String() {
	case "q":
		if m.sess.Nav().Dirty {
			m.prompt = newConfirmPrompt(promptQuitConfirm, "Unsaved changes. Quit without saving?", "")
			return m, nil
		}
		return m, tea.Quit

	case "tab":
		if m.focus == focusTree {
			m.focus = focusContent
			if m.sess.Nav().Mode == session.ModeEdit {
				return m, m.editor.Focus()
			}
		} else {
			m.focus = focusTree
		}
		return m, nil

	case "/":
		m.focus = focusSearch
		return m, m.search.Focus()

	case "esc":
		if m.sess.Banner() != "" {
			m.sess.DismissBanner()
			return m, nil
		}
		if m.focus == focusContent {
			m.focus = focusTree
		}
		return m, nil

	case "e":
		if m.sess.Nav().Mode == session.ModeView && m.sess.Note() != nil {
			cmd := m.execute(m.sess.ToggleMode())
			m.syncContent()
			m.focus = focusContent
			return m, tea.Batch(cmd, m.editor.Focus())
		}
		return m, nil

	case "ctrl+s":
		return m, m.execute(m.sess.Save())

	case "[":
		cmd := m.execute(m.sess.Back())
		m.syncContent()
		return m, cmd

	case "]":
		cmd := m.execute(m.sess.Forward())
		m.syncContent()
		return m, cmd

	case "n":
		dir := m.cursorDir()
		initial := ""
		if dir != "" {
			initial = dir + "/"
		}
		m.prompt = newTextPrompt(promptNewNote, "New note", "", initial)
		return m, nil

	case "N":
		dir := m.cursorDir()
		initial := ""
		if dir != "" {
			initial = dir + "/"
		}
		m.prompt = newTextPrompt(promptNewFolder, "New folder", "", initial)
		return m, nil

	case "x":
		return m, m.execute(m.sess.ExportCurrent(""))

	case "X":
		return m, m.execute(m.sess.DownloadCurrent())

	case "Z":
		return m, m.exportArchiveCmd()

	case "g":
		m.prompt = newTextPrompt(promptCommit, "Commit message (empty for default)", "", "")
		return m, nil

	case "G":
		return m, m.pullCmd()

	case "R":
		return m, m.execute(m.sess.ReloadTree())

	case "ctrl+r":
		if alt := m.state.alternate(m.sess.Nav().Path); alt != "" {
			return m, m.execute(m.sess.OpenNote(alt))
		}
		return m, nil
	}

	if m.focus == focusTree {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(rows)-1 {
				m.cursor++
			}
			return m, nil
		case "enter":
			if m.cursor < len(rows) {
				return m, m.execute(m.sess.SelectNode(rows[m.cursor].Node.Path))
			}
			return m, nil
		case "right":
			if m.cursor < len(rows) {
				if n := rows[m.cursor].Node; n.Kind == tree.KindFolder && !m.sess.Tree().Expanded(n.Path) {
					return m, m.execute(m.sess.SelectNode(n.Path))
				}
			}
			return m, nil
		case "left":
			if m.cursor < len(rows) {
				if n := rows[m.cursor].Node; n.Kind == tree.KindFolder && m.sess.Tree().Expanded(n.Path) {
					return m, m.execute(m.sess.SelectNode(n.Path))
				}
			}
			return m, nil
		case "r":
			if m.cursor < len(rows) {
				p := rows[m.cursor].Node.Path
				if name, ok := m.sess.BeginRename(p); ok {
					m.prompt = newTextPrompt(promptRename, "Rename "+p, p, name)
				}
			}
			return m, nil
		case "d":
			if m.cursor < len(rows) {
				node := rows[m.cursor].Node
				title := "Delete " + node.Path + "?"
				if node.Kind == tree.KindFolder {
					title = "Delete " + node.Path + " and everything inside it?"
				}
				m.prompt = newConfirmPrompt(promptDeleteConfirm, title, node.Path)
			}
			return m, nil
		}
		return m, nil
	}

	// Content pane in view mode: remaining keys drive the viewport.
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.sess.SetScrollFraction(session.ScrollFractionAt(
		m.viewport.YOffset, m.viewport.TotalLineCount(), m.viewport.Height,
	))
	return m, cmd
}

// cursorDir picks the folder new entries should land in: the folder under the
// tree cursor, the parent of the note under it, or the open note's folder.
func (m *Model) cursorDir() string {
	rows := m.sess.Tree().Rows()
	if m.focus == focusTree && m.cursor < len(rows) {
		n := rows[m.cursor].Node
		if n.Kind == tree.KindFolder {
			return n.Path
		}
		if d := path.Dir(n.Path); d != "." {
			return d
		}
		return ""
	}
	if p := m.sess.Nav().Path; p != "" {
		if d := path.Dir(p); d != "." {
			return d
		}
	}
	return ""
}

// syncContent pushes controller state into the bubbles widgets. It is called
// after every controller transition that can change the note, buffer or mode.
func (m *Model) syncContent() {
	if !m.ready {
		return
	}
	nav := m.sess.Nav()

	if nav.Mode == session.ModeEdit {
		if m.editor.Value() != m.sess.Buffer() {
			m.editor.SetValue(m.sess.Buffer())
			if line := m.sess.HighlightLine(); line > 0 {
				m.moveEditorToLine(line - 1)
			} else {
				// Land at the same reading position the preview was at.
				m.moveEditorToLine(session.ScrollOffset(
					m.sess.ScrollFraction(), m.editor.LineCount(), 1,
				))
			}
		}
		return
	}

	if m.editor.Focused() {
		m.editor.Blur()
	}

	note := m.sess.Note()
	if note == nil {
		m.viewport.SetContent(welcomeText)
		m.viewport.SetYOffset(0)
		return
	}
	m.viewport.SetContent(m.renderNote(note))
	m.viewport.SetYOffset(session.ScrollOffset(
		m.sess.ScrollFraction(), m.viewport.TotalLineCount(), m.viewport.Height,
	))
}

func (m *Model) renderNote(note *session.NoteData) string {
	if note.FileType != "markdown" || m.renderer == nil {
		return note.Content
	}
	out, err := m.renderer.Render(note.Content)
	if err != nil {
		return note.Content
	}
	return out
}

// moveEditorToLine walks the textarea cursor to the wanted line. The widget
// only exposes relative movement, so step until it stops making progress.
func (m *Model) moveEditorToLine(line int) {
	for m.editor.Line() > 0 {
		before := m.editor.Line()
		m.editor.CursorUp()
		if m.editor.Line() == before {
			break
		}
	}
	m.editor.CursorStart()
	for m.editor.Line() < line {
		before := m.editor.Line()
		m.editor.CursorDown()
		if m.editor.Line() == before {
			break
		}
	}
}

// jumpToHighlight moves the visible pane to the highlighted line when a
// search result resolves to the note that is already open. Fresh opens are
// handled by syncContent once the load completes.
func (m *Model) jumpToHighlight() {
	line := m.sess.HighlightLine()
	if line <= 0 || m.sess.Loading() {
		return
	}
	if m.sess.Nav().Mode == session.ModeEdit {
		m.moveEditorToLine(line - 1)
		return
	}
	note := m.sess.Note()
	if note == nil {
		return
	}
	lines := strings.Count(note.Content, "\n") + 1
	m.sess.SetScrollFraction(session.ScrollFractionAt(line-1, lines, 1))
	m.syncContent()
}

func (m *Model) followSelection() {
	for i, row := range m.sess.Tree().Rows() {
		if row.Selected {
			m.cursor = i
			return
		}
	}
}

func (m *Model) clampCursor() {
	if n := len(m.sess.Tree().Rows()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m *Model) setStatus(s string) tea.Cmd {
	m.statusID++
	m.status = s
	return statusExpiry(m.statusID)
}

func (m *Model) persistState() {
	_ = m.state.save(m.stateFile)
}

func (m *Model) treeWidth() int {
	w := m.width / 4
	return min(max(w, 22), 38)
}

func (m *Model) contentSize() (int, int) {
	w := m.width - m.treeWidth() - 1
	h := m.height - 3
	return max(w, 1), max(h, 1)
}

// Run connects to the server and drives the program until quit or ctx cancel.
func Run(ctx context.Context, api *client.Client, stateFile string) error {
	p := tea.NewProgram(New(api, stateFile), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
