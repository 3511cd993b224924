// Package search scans note contents for substring matches. There is no
// index; every query walks the store.
package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hverdal/quire/internal/apperr"
	"github.com/hverdal/quire/internal/notestore"
	"github.com/hverdal/quire/internal/tree"
)

const (
	// MaxQueryLength bounds accepted queries.
	MaxQueryLength = 200

	// maxMatchesPerFile caps how many lines a single note contributes.
	maxMatchesPerFile = 5
)

// Match is one matching line.
type Match struct {
	Path       string `json:"path"`
	LineNumber int    `json:"lineNumber"`
	LineText   string `json:"lineText"`
}

// Scan walks every note in the store and returns case-insensitive substring
// matches ordered by path, then line number. A blank query matches nothing;
// an overlong query is a validation error.
func Scan(store notestore.Store, query string) ([]Match, error) {
	if len(query) > MaxQueryLength {
		return nil, fmt.Errorf("search: %w: query longer than %d characters", apperr.ErrValidation, MaxQueryLength)
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []Match{}, nil
	}

	matches := []Match{}
	err := store.Walk(func(e notestore.Entry) error {
		if e.Dir || !tree.IsNotePath(e.Path) {
			return nil
		}
		data, err := store.Read(e.Path)
		if err != nil {
			// The file may have vanished mid-walk; skip rather than fail
			// the whole query.
			return nil
		}
		found := 0
		for i, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSuffix(line, "\r")
			if !strings.Contains(strings.ToLower(line), needle) {
				continue
			}
			matches = append(matches, Match{
				Path:       e.Path,
				LineNumber: i + 1,
				LineText:   line,
			})
			found++
			if found == maxMatchesPerFile {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].LineNumber < matches[j].LineNumber
	})
	return matches, nil
}
