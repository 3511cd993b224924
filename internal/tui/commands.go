package tui

import (
	"context"
	"os"
	"path"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hverdal/quire/internal/api"
	"github.com/hverdal/quire/internal/client"
	"github.com/hverdal/quire/internal/notebook"
	"github.com/hverdal/quire/internal/search"
	"github.com/hverdal/quire/internal/session"
	"github.com/hverdal/quire/internal/settings"
	"github.com/hverdal/quire/internal/tree"
	"github.com/hverdal/quire/internal/vcs"
)

// Completion messages. Each carries the request identity the session
// controller needs to pair it with the effect that started it.
type (
	treeLoadedMsg struct {
		children []*tree.Node
		err      error
	}
	noteLoadedMsg struct {
		seq  uint64
		data *session.NoteData
		err  error
	}
	savedMsg struct {
		seq  uint64
		data *session.NoteData
		err  error
	}
	noteCreatedMsg struct {
		requested string
		created   string
		err       error
	}
	folderCreatedMsg struct {
		requested string
		created   string
		err       error
	}
	noteRenamedMsg struct {
		src, dst string
		err      error
	}
	folderRenamedMsg struct {
		src, dst string
		err      error
	}
	noteDeletedMsg struct {
		path string
		err  error
	}
	folderDeletedMsg struct {
		path string
		err  error
	}
	searchResultsMsg struct {
		seq     uint64
		results []search.Match
		err     error
	}
	debounceMsg   struct{ seq uint64 }
	exportDoneMsg struct {
		filename string
		err      error
	}
	downloadDoneMsg struct {
		filename string
		err      error
	}
	settingsMsg struct {
		settings settings.Settings
		err      error
	}
	commitDoneMsg struct {
		result notebook.SyncResult
		err    error
	}
	pullDoneMsg struct {
		result vcs.PullResult
		err    error
	}
	eventsReadyMsg   struct{ ch <-chan client.Event }
	serverEventMsg   client.Event
	eventsClosedMsg  struct{}
	autosaveTickMsg  struct{}
	statusExpiredMsg struct{ id int }
)

func noteData(n *api.Note) *session.NoteData {
	if n == nil {
		return nil
	}
	return &session.NoteData{
		Path:     n.Path,
		Name:     n.Name,
		Content:  n.Content,
		HTML:     n.HTML,
		FileType: n.FileType,
	}
}

// execute turns controller effects into Bubble Tea commands. Location and
// persistence effects apply immediately; everything else becomes a request
// whose completion message re-enters Update.
func (m *Model) execute(effects []session.Effect) tea.Cmd {
	var cmds []tea.Cmd
	for _, e := range effects {
		switch e := e.(type) {
		case session.LoadTree:
			cmds = append(cmds, m.loadTreeCmd())
		case session.LoadNote:
			cmds = append(cmds, m.loadNoteCmd(e))
		case session.SaveNote:
			cmds = append(cmds, m.saveNoteCmd(e))
		case session.CreateNote:
			cmds = append(cmds, m.createNoteCmd(e))
		case session.CreateFolder:
			cmds = append(cmds, m.createFolderCmd(e))
		case session.RenameNote:
			cmds = append(cmds, m.renameNoteCmd(e))
		case session.RenameFolder:
			cmds = append(cmds, m.renameFolderCmd(e))
		case session.DeleteNote:
			cmds = append(cmds, m.deleteNoteCmd(e))
		case session.DeleteFolder:
			cmds = append(cmds, m.deleteFolderCmd(e))
		case session.RunSearch:
			cmds = append(cmds, m.runSearchCmd(e))
		case session.StartDebounce:
			cmds = append(cmds, debounceCmd(e))
		case session.SetLocation:
			m.state.Location = e.Location.Encode()
			m.persistState()
		case session.PersistLastOpened:
			m.state.LastOpened = e.Path
			m.state.trackRecent(e.Path)
			m.persistState()
		case session.ExportNote:
			cmds = append(cmds, m.exportNoteCmd(e))
		case session.DownloadNote:
			cmds = append(cmds, m.downloadNoteCmd(e))
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) loadTreeCmd() tea.Cmd {
	return func() tea.Msg {
		children, err := m.api.Tree(context.Background())
		return treeLoadedMsg{children: children, err: err}
	}
}

func (m *Model) loadNoteCmd(e session.LoadNote) tea.Cmd {
	return func() tea.Msg {
		n, err := m.api.GetNote(context.Background(), e.Path)
		return noteLoadedMsg{seq: e.Seq, data: noteData(n), err: err}
	}
}

func (m *Model) saveNoteCmd(e session.SaveNote) tea.Cmd {
	return func() tea.Msg {
		n, err := m.api.SaveNote(context.Background(), e.Path, e.Content)
		return savedMsg{seq: e.Seq, data: noteData(n), err: err}
	}
}

func (m *Model) createNoteCmd(e session.CreateNote) tea.Cmd {
	return func() tea.Msg {
		n, err := m.api.CreateNote(context.Background(), e.Path, "")
		msg := noteCreatedMsg{requested: e.Path, err: err}
		if n != nil {
			msg.created = n.Path
		}
		return msg
	}
}

func (m *Model) createFolderCmd(e session.CreateFolder) tea.Cmd {
	return func() tea.Msg {
		created, err := m.api.CreateFolder(context.Background(), e.Path)
		return folderCreatedMsg{requested: e.Path, created: created, err: err}
	}
}

func (m *Model) renameNoteCmd(e session.RenameNote) tea.Cmd {
	return func() tea.Msg {
		dst, err := m.api.RenameNote(context.Background(), e.SourcePath, e.DestinationPath)
		if err != nil {
			dst = e.DestinationPath
		}
		return noteRenamedMsg{src: e.SourcePath, dst: dst, err: err}
	}
}

func (m *Model) renameFolderCmd(e session.RenameFolder) tea.Cmd {
	return func() tea.Msg {
		dst, err := m.api.RenameFolder(context.Background(), e.SourcePath, e.DestinationPath)
		if err != nil {
			dst = e.DestinationPath
		}
		return folderRenamedMsg{src: e.SourcePath, dst: dst, err: err}
	}
}

func (m *Model) deleteNoteCmd(e session.DeleteNote) tea.Cmd {
	return func() tea.Msg {
		return noteDeletedMsg{path: e.Path, err: m.api.DeleteNote(context.Background(), e.Path)}
	}
}

func (m *Model) deleteFolderCmd(e session.DeleteFolder) tea.Cmd {
	return func() tea.Msg {
		return folderDeletedMsg{path: e.Path, err: m.api.DeleteFolder(context.Background(), e.Path)}
	}
}

func (m *Model) runSearchCmd(e session.RunSearch) tea.Cmd {
	return func() tea.Msg {
		results, err := m.api.Search(context.Background(), e.Query)
		return searchResultsMsg{seq: e.Seq, results: results, err: err}
	}
}

func debounceCmd(e session.StartDebounce) tea.Cmd {
	return tea.Tick(e.Delay, func(time.Time) tea.Msg {
		return debounceMsg{seq: e.Seq}
	})
}

// exportNoteCmd writes the standalone HTML next to where the program runs,
// under the filename the server chose.
func (m *Model) exportNoteCmd(e session.ExportNote) tea.Cmd {
	return func() tea.Msg {
		name, data, err := m.api.ExportNote(context.Background(), e.Path, e.Theme)
		if err != nil {
			return exportDoneMsg{err: err}
		}
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return exportDoneMsg{err: err}
		}
		return exportDoneMsg{filename: name}
	}
}

func (m *Model) downloadNoteCmd(e session.DownloadNote) tea.Cmd {
	return func() tea.Msg {
		n, err := m.api.GetNote(context.Background(), e.Path)
		if err != nil {
			return downloadDoneMsg{err: err}
		}
		name := path.Base(n.Path)
		if err := os.WriteFile(name, []byte(n.Content), 0o644); err != nil {
			return downloadDoneMsg{err: err}
		}
		return downloadDoneMsg{filename: name}
	}
}

func (m *Model) exportArchiveCmd() tea.Cmd {
	return func() tea.Msg {
		name, data, err := m.api.ExportArchive(context.Background())
		if err != nil {
			return exportDoneMsg{err: err}
		}
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return exportDoneMsg{err: err}
		}
		return exportDoneMsg{filename: name}
	}
}

func (m *Model) fetchSettingsCmd() tea.Cmd {
	return func() tea.Msg {
		s, err := m.api.Settings(context.Background())
		return settingsMsg{settings: s, err: err}
	}
}

func (m *Model) commitCmd(message string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.api.Commit(context.Background(), message)
		return commitDoneMsg{result: res, err: err}
	}
}

func (m *Model) pullCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := m.api.Pull(context.Background())
		return pullDoneMsg{result: res, err: err}
	}
}

// connectEventsCmd opens the server's event stream. The subscription lives
// for the life of the process.
func (m *Model) connectEventsCmd() tea.Cmd {
	return func() tea.Msg {
		ch, err := m.api.Events(context.Background())
		if err != nil {
			return eventsClosedMsg{}
		}
		return eventsReadyMsg{ch: ch}
	}
}

func waitForEvent(ch <-chan client.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return serverEventMsg(ev)
	}
}

func autosaveTick(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg {
		return autosaveTickMsg{}
	})
}

func statusExpiry(id int) tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return statusExpiredMsg{id: id}
	})
}
