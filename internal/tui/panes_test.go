package tui

import "testing"

func TestScrollWindow(t *testing.T) {
	cases := []struct {
		name                   string
		cursor, total, visible int
		want                   int
	}{
		{"everything fits", 3, 5, 10, 0},
		{"cursor at top", 0, 50, 10, 0},
		{"cursor centered", 25, 50, 10, 20},
		{"cursor near end clamps", 49, 50, 10, 40},
		{"zero visible", 5, 50, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scrollWindow(tc.cursor, tc.total, tc.visible)
			if got != tc.want {
				t.Fatalf("scrollWindow(%d, %d, %d) = %d, want %d", tc.cursor, tc.total, tc.visible, got, tc.want)
			}
		})
	}

	// The cursor must always land inside the window.
	for cursor := 0; cursor < 50; cursor++ {
		off := scrollWindow(cursor, 50, 10)
		if cursor < off || cursor >= off+10 {
			t.Fatalf("cursor %d outside window [%d, %d)", cursor, off, off+10)
		}
	}
}
