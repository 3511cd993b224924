package tree

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hverdal/quire/internal/notestore"
)

func buildFixture(t *testing.T, files map[string]string, dirs ...string) *Node {
	t.Helper()
	root := t.TempDir()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for p, content := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := notestore.NewDir(root)
	if err != nil {
		t.Fatal(err)
	}
	n, err := Build(store)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

func TestBuildShapeAndOrdering(t *testing.T) {
	root := buildFixture(t, map[string]string{
		"zeta.md":          "z",
		"Alpha.md":         "a",
		"projects/idea.md": "i",
		"projects/pic.png": "img",
		"archive/old.md":   "o",
	})

	// Folders first (archive, projects), then notes case-insensitively.
	names := make([]string, 0, len(root.Children))
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	want := []string{"archive", "projects", "Alpha.md", "zeta.md"}
	if len(names) != len(want) {
		t.Fatalf("children = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("children = %v, want %v", names, want)
		}
	}

	projects := Find(root, "projects")
	if projects == nil || projects.Kind != KindFolder {
		t.Fatal("projects folder missing")
	}
	if len(projects.Children) != 2 {
		t.Fatalf("projects children = %d, want 2", len(projects.Children))
	}
	if projects.Children[0].Path != "projects/idea.md" || projects.Children[0].Kind != KindNote {
		t.Errorf("first child = %+v", projects.Children[0])
	}
	if projects.Children[1].Kind != KindImage {
		t.Errorf("pic.png kind = %v, want image", projects.Children[1].Kind)
	}
}

func TestBuildSkipsUnknownFiles(t *testing.T) {
	root := buildFixture(t, map[string]string{
		"note.md":     "n",
		"binary.blob": "x",
		"notes.txt":   "t",
	})
	if Find(root, "binary.blob") != nil {
		t.Error("unknown extension should not appear in the tree")
	}
	if Find(root, "notes.txt") == nil {
		t.Error("txt files should appear as notes")
	}
}

func TestKindJSONRoundTrip(t *testing.T) {
	n := &Node{Name: "pic.png", Path: "pic.png", Kind: KindImage}
	raw, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"name":"pic.png","path":"pic.png","type":"image"}` {
		t.Errorf("json = %s", raw)
	}
	var back Node
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Kind != KindImage {
		t.Errorf("kind = %v, want image", back.Kind)
	}
}

func TestKindUnmarshalRejectsUnknown(t *testing.T) {
	var k Kind
	if err := json.Unmarshal([]byte(`"surprise"`), &k); err == nil {
		t.Error("unknown kind should fail to unmarshal")
	}
}

func TestFileType(t *testing.T) {
	cases := map[string]string{
		"a.md":      "markdown",
		"b.txt":     "text",
		"data.csv":  "csv",
		"script.py": "text",
	}
	for name, want := range cases {
		if got := FileType(name); got != want {
			t.Errorf("FileType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestAncestors(t *testing.T) {
	got := Ancestors("a/b/c.md")
	want := []string{"a", "a/b"}
	if len(got) != len(want) {
		t.Fatalf("ancestors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ancestors = %v, want %v", got, want)
		}
	}
	if len(Ancestors("top.md")) != 0 {
		t.Error("top-level path has no ancestors")
	}
}

func TestFindNested(t *testing.T) {
	root := buildFixture(t, map[string]string{
		"a/b/c/deep.md": "d",
	})
	n := Find(root, "a/b/c/deep.md")
	if n == nil || n.Name != "deep.md" {
		t.Fatalf("Find returned %+v", n)
	}
	if Find(root, "a/b/missing.md") != nil {
		t.Error("expected nil for missing path")
	}
}
