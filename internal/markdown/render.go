// Package markdown converts note sources to HTML for the JSON API and for
// standalone exports.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown to HTML. Safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer builds the note renderer: GFM tables/strikethrough/task lists,
// auto heading ids, raw HTML passed through so notes can embed img tags.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// mermaidFence matches fenced mermaid blocks so they can be handed to the
// client-side mermaid runtime instead of being rendered as code.
var mermaidFence = regexp.MustCompile("(?s)```mermaid\\s*\\n(.*?)```")

// Render converts source to HTML. Leading tabs are expanded to tabLength
// spaces first so list and code indentation matches the editor's view;
// mermaid fences are rewritten to div.mermaid blocks.
func (r *Renderer) Render(source string, tabLength int) (string, error) {
	if tabLength < 1 {
		tabLength = 4
	}
	src := expandLeadingTabs(source, tabLength)
	src = mermaidFence.ReplaceAllString(src, `<div class="mermaid">`+"\n$1"+`</div>`)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown: render: %w", err)
	}
	return buf.String(), nil
}

func expandLeadingTabs(source string, tabLength int) string {
	if !strings.Contains(source, "\t") {
		return source
	}
	indent := strings.Repeat(" ", tabLength)
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		n := 0
		for n < len(line) && line[n] == '\t' {
			n++
		}
		if n > 0 {
			lines[i] = strings.Repeat(indent, n) + line[n:]
		}
	}
	return strings.Join(lines, "\n")
}
