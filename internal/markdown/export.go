package markdown

import (
	"fmt"
	"html"
	"strings"
)

// Export themes.
const (
	ThemeLight       = "light"
	ThemeDark        = "dark"
	ThemeGruvboxDark = "gruvbox-dark"
)

// exportPalettes holds the colors inlined into exported documents.
var exportPalettes = map[string]struct{ bg, fg, accent, codeBg string }{
	ThemeLight:       {bg: "#ffffff", fg: "#1f2328", accent: "#0969da", codeBg: "#f6f8fa"},
	ThemeDark:        {bg: "#0d1117", fg: "#e6edf3", accent: "#4493f8", codeBg: "#161b22"},
	ThemeGruvboxDark: {bg: "#282828", fg: "#ebdbb2", accent: "#83a598", codeBg: "#3c3836"},
}

// KnownTheme reports whether name is a supported export theme.
func KnownTheme(name string) bool {
	_, ok := exportPalettes[name]
	return ok
}

// ExportDocument wraps rendered note HTML into a self-contained document.
// Unknown themes fall back to light. Documents containing mermaid blocks get
// the mermaid runtime from a CDN so diagrams render offline-opened files too.
func ExportDocument(title, body, theme string) string {
	p, ok := exportPalettes[theme]
	if !ok {
		p = exportPalettes[ThemeLight]
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	fmt.Fprintf(&b, `<style>
body { background: %s; color: %s; font-family: -apple-system, "Segoe UI", sans-serif;
       max-width: 52rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.6; }
a { color: %s; }
pre, code { background: %s; border-radius: 4px; }
pre { padding: 0.75rem; overflow-x: auto; }
code { padding: 0.1rem 0.3rem; }
pre code { padding: 0; }
table { border-collapse: collapse; }
th, td { border: 1px solid %s; padding: 0.3rem 0.6rem; }
img { max-width: 100%%; }
blockquote { border-left: 3px solid %s; margin-left: 0; padding-left: 1rem; opacity: 0.9; }
</style>
`, p.bg, p.fg, p.accent, p.codeBg, p.codeBg, p.accent)
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	if strings.Contains(body, `class="mermaid"`) {
		b.WriteString("\n<script type=\"module\">\n" +
			"import mermaid from \"https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.esm.min.mjs\";\n" +
			"mermaid.initialize({ startOnLoad: true });\n</script>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}
