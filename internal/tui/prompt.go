package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

type promptKind int

const (
	promptNewNote promptKind = iota
	promptNewFolder
	promptRename
	promptDeleteConfirm
	promptCommit
	promptQuitConfirm
)

// prompt is the single-line modal at the bottom of the screen. Text prompts
// carry a textinput; confirm prompts only wait for y or n.
type prompt struct {
	kind   promptKind
	title  string
	target string
	input  textinput.Model
}

func newTextPrompt(kind promptKind, title, target, initial string) *prompt {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 256
	ti.SetValue(initial)
	ti.CursorEnd()
	ti.Focus()
	return &prompt{kind: kind, title: title, target: target, input: ti}
}

func newConfirmPrompt(kind promptKind, title, target string) *prompt {
	return &prompt{kind: kind, title: title, target: target}
}

func (p *prompt) confirm() bool {
	return p.kind == promptDeleteConfirm || p.kind == promptQuitConfirm
}

var promptTitleStyle = lipgloss.NewStyle().Bold(true)

func (p *prompt) view() string {
	if p.confirm() {
		return promptTitleStyle.Render(p.title) + "  [y/n]"
	}
	return promptTitleStyle.Render(p.title) + "\n" + p.input.View()
}
