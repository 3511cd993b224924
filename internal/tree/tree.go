// Package tree builds the hierarchical projection of the note store that is
// served to clients and mirrored by the session controller.
package tree

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hverdal/quire/internal/notestore"
)

// Kind is the node kind shown in the tree.
type Kind uint8

const (
	KindFolder Kind = iota
	KindNote
	KindImage
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindNote:
		return "note"
	case KindImage:
		return "image"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind converts a wire name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "folder":
		return KindFolder, nil
	case "note":
		return KindNote, nil
	case "image":
		return KindImage, nil
	}
	return 0, fmt.Errorf("tree: unknown node kind %q", s)
}

// MarshalJSON encodes the kind as its wire name.
func (k Kind) MarshalJSON() ([]byte, error) {
	switch k {
	case KindFolder, KindNote, KindImage:
		return json.Marshal(k.String())
	}
	return nil, fmt.Errorf("tree: cannot marshal kind %d", uint8(k))
}

// UnmarshalJSON decodes a wire name into the kind.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Node is one entry of the tree snapshot.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Kind     Kind    `json:"type"`
	Children []*Node `json:"children,omitempty"`
}

// noteExtensions maps recognized note file extensions to their file type.
var noteExtensions = map[string]string{
	".md":   "markdown",
	".txt":  "text",
	".log":  "text",
	".py":   "text",
	".go":   "text",
	".js":   "text",
	".ts":   "text",
	".sh":   "text",
	".json": "text",
	".yaml": "text",
	".yml":  "text",
	".toml": "text",
	".csv":  "csv",
}

// imageExtensions lists the image extensions shown in the tree and served
// through the raw file endpoint.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".svg":  true,
	".webp": true,
}

// KindForEntry classifies a store entry. ok is false for files that do not
// appear in the tree at all.
func KindForEntry(e notestore.Entry) (Kind, bool) {
	if e.Dir {
		return KindFolder, true
	}
	ext := strings.ToLower(path.Ext(e.Path))
	if _, isNote := noteExtensions[ext]; isNote {
		return KindNote, true
	}
	if imageExtensions[ext] {
		return KindImage, true
	}
	return 0, false
}

// IsNotePath reports whether name carries a recognized note extension.
func IsNotePath(name string) bool {
	_, ok := noteExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

// IsImagePath reports whether name carries a recognized image extension.
func IsImagePath(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// FileType returns the note file type for name: markdown, csv or text.
// Unrecognized extensions count as text.
func FileType(name string) string {
	if t, ok := noteExtensions[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return "text"
}

// Build produces a fresh snapshot of the store. The returned root node has an
// empty path and holds the top-level entries as children. Siblings are
// ordered folders first, then case-insensitively by name; the same ordering
// is assumed by every consumer.
func Build(store notestore.Store) (*Node, error) {
	root := &Node{Kind: KindFolder}
	byPath := map[string]*Node{"": root}

	err := store.Walk(func(e notestore.Entry) error {
		kind, ok := KindForEntry(e)
		if !ok {
			return nil
		}
		dir := path.Dir(e.Path)
		if dir == "." {
			dir = ""
		}
		parent := byPath[dir]
		if parent == nil {
			// Parent directory was classified out; skip the subtree entry.
			return nil
		}
		n := &Node{Name: e.Name(), Path: e.Path, Kind: kind}
		parent.Children = append(parent.Children, n)
		if kind == KindFolder {
			byPath[e.Path] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortTree(root)
	return root, nil
}

func sortTree(n *Node) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		aDir := a.Kind == KindFolder
		bDir := b.Kind == KindFolder
		if aDir != bDir {
			return aDir
		}
		an := strings.ToLower(a.Name)
		bn := strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		if c.Kind == KindFolder {
			sortTree(c)
		}
	}
}

// Find returns the node with the given path, or nil.
func Find(root *Node, p string) *Node {
	if root == nil {
		return nil
	}
	if root.Path == p {
		return root
	}
	for _, c := range root.Children {
		if c.Path == p {
			return c
		}
		if c.Kind == KindFolder && strings.HasPrefix(p, c.Path+"/") {
			return Find(c, p)
		}
	}
	return nil
}

// Ancestors returns the folder paths above p, outermost first.
func Ancestors(p string) []string {
	var out []string
	for i, r := range p {
		if r == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}
