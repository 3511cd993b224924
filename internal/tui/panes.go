package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hverdal/quire/internal/session"
	"github.com/hverdal/quire/internal/tree"
)

var (
	appNameStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	titleBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dirtyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dividerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	cursorRowStyle   = lipgloss.NewStyle().Reverse(true)
	selectedRowStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	folderStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	imageStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	busyMarkStyle    = lipgloss.NewStyle().Faint(true)

	matchLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	dimStyle       = lipgloss.NewStyle().Faint(true)

	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

const welcomeText = `
  No note open.

  enter  open the note under the cursor
  n      create a note        N  create a folder
  /      search               e  edit the open note
  [ ]    back and forward     q  quit
`

func (m *Model) View() string {
	if !m.ready {
		return "starting…"
	}
	tw := m.treeWidth()
	_, ch := m.contentSize()

	divider := strings.TrimSuffix(strings.Repeat(dividerStyle.Render("│")+"\n", ch), "\n")
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.treePaneView(tw, ch),
		divider,
		m.contentPaneView(),
	)
	return m.titleView() + "\n" + body + "\n" + m.bottomView()
}

func (m *Model) titleView() string {
	nav := m.sess.Nav()
	left := appNameStyle.Render("quire")

	var b strings.Builder
	if nav.Path == "" {
		b.WriteString("no note open")
	} else {
		b.WriteString(nav.Path)
		b.WriteString("  ")
		b.WriteString(nav.Mode.String())
	}
	if m.sess.Loading() {
		b.WriteString("  loading…")
	}
	line := left + " " + titleBarStyle.Render(b.String())
	if nav.Dirty {
		line += dirtyStyle.Render(" *")
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(line)
}

func (m *Model) treePaneView(w, h int) string {
	lines := make([]string, 0, h)
	lines = append(lines, m.search.View())

	if m.sess.SearchQuery() != "" {
		lines = append(lines, m.searchResultLines(w, h-1)...)
	} else {
		lines = append(lines, m.treeLines(w, h-1)...)
	}

	for len(lines) < h {
		lines = append(lines, "")
	}
	pane := lipgloss.NewStyle().Width(w).MaxWidth(w).Render(strings.Join(lines[:h], "\n"))
	return pane
}

func (m *Model) treeLines(w, visible int) []string {
	if m.sess.TreeUnavailable() && !m.sess.Tree().Loaded() {
		return []string{dimStyle.Render("  tree unavailable"), dimStyle.Render("  R to retry")}
	}
	rows := m.sess.Tree().Rows()
	if len(rows) == 0 {
		return []string{dimStyle.Render("  empty notebook"), dimStyle.Render("  n to create a note")}
	}

	offset := scrollWindow(m.cursor, len(rows), visible)
	lines := make([]string, 0, visible)
	for i := offset; i < len(rows) && i < offset+visible; i++ {
		lines = append(lines, m.treeRowLine(rows[i], i, w))
	}
	return lines
}

func (m *Model) treeRowLine(row session.Row, idx, w int) string {
	var icon string
	switch {
	case row.Node.Kind == tree.KindFolder && row.Expanded:
		icon = "▾ "
	case row.Node.Kind == tree.KindFolder:
		icon = "▸ "
	case row.Node.Kind == tree.KindImage:
		icon = "◦ "
	default:
		icon = "· "
	}

	name := row.Node.Name
	if m.sess.Busy(row.Node.Path) {
		name += busyMarkStyle.Render(" …")
	}

	line := strings.Repeat("  ", row.Depth) + icon + name
	style := lipgloss.NewStyle()
	switch {
	case m.focus == focusTree && idx == m.cursor:
		style = cursorRowStyle
	case row.Selected:
		style = selectedRowStyle
	case row.Node.Kind == tree.KindFolder:
		style = folderStyle
	case row.Node.Kind == tree.KindImage:
		style = imageStyle
	}
	return style.MaxWidth(w).Render(line)
}

func (m *Model) searchResultLines(w, visible int) []string {
	if m.sess.Searching() {
		return []string{dimStyle.Render("  searching…")}
	}
	results := m.sess.SearchResults()
	if len(results) == 0 {
		return []string{dimStyle.Render("  no matches")}
	}

	lines := make([]string, 0, visible)
	lines = append(lines, dimStyle.Render(fmt.Sprintf("  %d matches", len(results))))
	offset := scrollWindow(m.searchCursor, len(results), visible-1)
	for i := offset; i < len(results) && i < offset+visible-1; i++ {
		hit := results[i]
		line := fmt.Sprintf("%s:%d", hit.Path, hit.LineNumber)
		text := strings.TrimSpace(hit.LineText)
		if text != "" {
			line += " " + matchLineStyle.Render(text)
		}
		style := lipgloss.NewStyle()
		if m.focus == focusSearch && i == m.searchCursor {
			style = cursorRowStyle
		}
		lines = append(lines, style.MaxWidth(w).Render(line))
	}
	return lines
}

func (m *Model) contentPaneView() string {
	if m.sess.Nav().Mode == session.ModeEdit {
		return m.editor.View()
	}
	return m.viewport.View()
}

func (m *Model) bottomView() string {
	if m.prompt != nil {
		v := m.prompt.view()
		if !strings.Contains(v, "\n") {
			v += "\n"
		}
		return v
	}

	first := ""
	if banner := m.sess.Banner(); banner != "" {
		first = bannerStyle.Render(banner + "  (esc to dismiss)")
	} else if m.status != "" {
		first = statusStyle.Render(m.status)
	}

	var hints string
	switch {
	case m.focus == focusSearch:
		hints = "enter open · ↑/↓ pick · esc close"
	case m.focus == focusContent && m.sess.Nav().Mode == session.ModeEdit:
		hints = "esc save and view · ctrl+s save · shift+tab tree"
	case m.focus == focusContent:
		hints = "e edit · ↑/↓ scroll · x export · X download · [ ] history · tab tree"
	default:
		hints = "enter open · e edit · n note · N folder · r rename · d delete · / search · g commit · G pull · q quit"
	}

	maxw := lipgloss.NewStyle().MaxWidth(m.width)
	return maxw.Render(first) + "\n" + maxw.Render(hintStyle.Render(hints))
}

// scrollWindow returns the first visible index so cursor stays on screen.
func scrollWindow(cursor, total, visible int) int {
	if visible <= 0 || total <= visible {
		return 0
	}
	offset := cursor - visible/2
	if offset < 0 {
		offset = 0
	}
	if offset > total-visible {
		offset = total - visible
	}
	return offset
}
