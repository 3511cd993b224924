package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const maxRecent = 8

// clientState is what survives between runs: the settled location, the
// last opened note, and a short most-recent-first note list.
type clientState struct {
	Location   string   `json:"location,omitempty"`
	LastOpened string   `json:"lastOpened,omitempty"`
	Recent     []string `json:"recent,omitempty"`
}

// loadClientState reads the state file. A missing file is a first run and
// yields the zero state.
func loadClientState(path string) (clientState, error) {
	var state clientState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("tui: read state %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return clientState{}, fmt.Errorf("tui: parse state %q: %w", path, err)
	}
	if len(state.Recent) > maxRecent {
		state.Recent = state.Recent[:maxRecent]
	}
	return state, nil
}

// save writes the state file, creating parent directories as needed.
func (s clientState) save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("tui: marshal state: %w", err)
	}
	data = append(data, '\n')
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("tui: create state dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("tui: write state %q: %w", path, err)
	}
	return nil
}

// trackRecent moves p to the front of the recent list.
func (s *clientState) trackRecent(p string) {
	if p == "" {
		return
	}
	out := make([]string, 0, len(s.Recent)+1)
	out = append(out, p)
	for _, r := range s.Recent {
		if r != p {
			out = append(out, r)
		}
	}
	if len(out) > maxRecent {
		out = out[:maxRecent]
	}
	s.Recent = out
}

// dropRecent removes p and anything under it after a delete.
func (s *clientState) dropRecent(p string) {
	out := s.Recent[:0]
	for _, r := range s.Recent {
		if r == p || hasPrefixSlash(r, p) {
			continue
		}
		out = append(out, r)
	}
	s.Recent = out
}

// alternate returns the most recent note other than current, or "".
func (s clientState) alternate(current string) string {
	for _, r := range s.Recent {
		if r != current {
			return r
		}
	}
	return ""
}

func hasPrefixSlash(p, prefix string) bool {
	return len(p) > len(prefix) && p[:len(prefix)] == prefix && p[len(prefix)] == '/'
}
