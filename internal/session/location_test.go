package session

import "testing"

func TestLocationRoundTrip(t *testing.T) {
	paths := []string{
		"todo.md",
		"topics/deep/where ideas live.md",
		"q&a/50% done.md",
		"math/1+1=2.md",
		"notes/#hash and ;semi.md",
		"пример/заметка.md",
		"emoji 🎉/day one.md",
		"plus+plus/a+b.md",
	}
	for _, p := range paths {
		for _, mode := range []Mode{ModeView, ModeEdit} {
			enc := Location{Path: p, Mode: mode}.Encode()
			got, err := ParseLocation(enc)
			if err != nil {
				t.Fatalf("ParseLocation(%q): %v", enc, err)
			}
			if got.Path != p {
				t.Errorf("path %q round-tripped to %q via %q", p, got.Path, enc)
			}
			if got.Mode != mode {
				t.Errorf("mode %v round-tripped to %v for %q", mode, got.Mode, p)
			}
		}
	}
}

func TestLocationEmpty(t *testing.T) {
	if enc := (Location{}).Encode(); enc != "" {
		t.Fatalf("empty location encoded to %q", enc)
	}
	loc, err := ParseLocation("")
	if err != nil {
		t.Fatalf("ParseLocation: %v", err)
	}
	if loc.Path != "" || loc.Mode != ModeView {
		t.Fatalf("expected empty view location, got %+v", loc)
	}
}

func TestLocationPseudoModesEncodeAsView(t *testing.T) {
	for _, mode := range []Mode{ModeExport, ModeDownload} {
		loc, err := ParseLocation(Location{Path: "a.md", Mode: mode}.Encode())
		if err != nil {
			t.Fatalf("ParseLocation: %v", err)
		}
		if loc.Mode != ModeView {
			t.Errorf("%v should settle to view in the encoded form, got %v", mode, loc.Mode)
		}
	}
}

func TestParseLocationLenientMode(t *testing.T) {
	for _, query := range []string{"note=a.md", "note=a.md&mode=sideways"} {
		loc, err := ParseLocation(query)
		if err != nil {
			t.Fatalf("ParseLocation(%q): %v", query, err)
		}
		if loc.Path != "a.md" || loc.Mode != ModeView {
			t.Errorf("ParseLocation(%q) = %+v, want a.md in view", query, loc)
		}
	}
}

func TestParseLocationBadEscape(t *testing.T) {
	if _, err := ParseLocation("note=%zz"); err == nil {
		t.Fatal("expected an error for a malformed escape")
	}
}

func TestParseModeUnknown(t *testing.T) {
	if _, err := ParseMode("preview"); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
}
