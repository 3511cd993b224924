package session

import "github.com/hverdal/quire/internal/tree"

// TreeIndex holds the latest tree snapshot together with the per-node
// expansion flags and the selection. Expansion is keyed by path so it
// survives reloads; nodes appearing for the first time start collapsed,
// except ancestors of the selection, which are forced open so the
// selection stays visible.
type TreeIndex struct {
	root     *tree.Node
	expanded map[string]bool
	selected string

	// A selection requested before its node exists (a note created moments
	// ago, a rename target) is kept pending and retried after the next
	// successful reload, at most once.
	pendingSelect  string
	pendingRetried bool

	loaded bool
}

// Row is one visible line of the rendered tree.
type Row struct {
	Node     *tree.Node
	Depth    int
	Expanded bool
	Selected bool
}

func newTreeIndex() *TreeIndex {
	return &TreeIndex{expanded: make(map[string]bool)}
}

// ApplySnapshot installs a fresh snapshot, carrying expansion over by path
// and resolving any pending selection.
func (t *TreeIndex) ApplySnapshot(children []*tree.Node) {
	t.root = &tree.Node{Kind: tree.KindFolder, Children: children}
	t.loaded = true

	kept := make(map[string]bool, len(t.expanded))
	t.walkFolders(t.root, func(n *tree.Node) {
		if t.expanded[n.Path] {
			kept[n.Path] = true
		}
	})
	t.expanded = kept

	if t.pendingSelect != "" {
		p := t.pendingSelect
		if tree.Find(t.root, p) != nil {
			t.pendingSelect = ""
			t.pendingRetried = false
			t.setSelected(p)
		} else if t.pendingRetried {
			t.pendingSelect = ""
			t.pendingRetried = false
		} else {
			t.pendingRetried = true
		}
	}
	if t.selected != "" && tree.Find(t.root, t.selected) == nil {
		t.selected = ""
	}
	t.expandAncestors(t.selected)
}

// Select highlights the node at p, queueing the request when the node is
// not in the current snapshot yet.
func (t *TreeIndex) Select(p string) {
	if p == "" {
		t.selected = ""
		t.pendingSelect = ""
		t.pendingRetried = false
		return
	}
	if t.loaded && tree.Find(t.root, p) != nil {
		t.pendingSelect = ""
		t.pendingRetried = false
		t.setSelected(p)
		return
	}
	t.pendingSelect = p
	t.pendingRetried = false
}

func (t *TreeIndex) setSelected(p string) {
	t.selected = p
	t.expandAncestors(p)
}

func (t *TreeIndex) expandAncestors(p string) {
	for _, a := range tree.Ancestors(p) {
		t.expanded[a] = true
	}
}

// Toggle flips the expansion of the folder at p.
func (t *TreeIndex) Toggle(p string) {
	if t.expanded[p] {
		delete(t.expanded, p)
		return
	}
	t.expanded[p] = true
}

// Selected returns the path of the highlighted node, or "".
func (t *TreeIndex) Selected() string { return t.selected }

// Loaded reports whether a snapshot has been applied.
func (t *TreeIndex) Loaded() bool { return t.loaded }

// Expanded reports whether the folder at p is open.
func (t *TreeIndex) Expanded(p string) bool { return t.expanded[p] }

// Find returns the node at p in the current snapshot, or nil.
func (t *TreeIndex) Find(p string) *tree.Node {
	if !t.loaded {
		return nil
	}
	return tree.Find(t.root, p)
}

// Rows flattens the snapshot into the lines a list view would draw,
// descending only into expanded folders.
func (t *TreeIndex) Rows() []Row {
	if !t.loaded {
		return nil
	}
	var rows []Row
	var walk func(nodes []*tree.Node, depth int)
	walk = func(nodes []*tree.Node, depth int) {
		for _, n := range nodes {
			open := n.Kind == tree.KindFolder && t.expanded[n.Path]
			rows = append(rows, Row{
				Node:     n,
				Depth:    depth,
				Expanded: open,
				Selected: n.Path == t.selected,
			})
			if open {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(t.root.Children, 0)
	return rows
}

func (t *TreeIndex) walkFolders(n *tree.Node, fn func(*tree.Node)) {
	for _, c := range n.Children {
		if c.Kind == tree.KindFolder {
			fn(c)
			t.walkFolders(c, fn)
		}
	}
}
