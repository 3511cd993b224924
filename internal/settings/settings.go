// Package settings persists per-notebook preferences as a hidden JSON file
// inside the notebook root.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hverdal/quire/internal/apperr"
	"github.com/hverdal/quire/internal/markdown"
	"github.com/hverdal/quire/internal/notestore"
)

// FilePath is where settings live, relative to the notebook root. The
// dot-prefixed directory keeps it out of the tree and search.
const FilePath = ".quire/settings.json"

// MatchAppTheme makes exports follow the application theme.
const MatchAppTheme = "match-app-theme"

// Settings holds the notebook preferences exposed over the API.
type Settings struct {
	Theme                   string `json:"theme"`
	ExportTheme             string `json:"exportTheme"`
	TabLength               int    `json:"tabLength"`
	AutoCommitNotes         bool   `json:"autoCommitNotes"`
	AutoSaveIntervalSeconds int    `json:"autoSaveIntervalSeconds"`
	ImageStoragePath        string `json:"imageStoragePath"`
	ImageMaxPasteBytes      int64  `json:"imageMaxPasteBytes"`
	TimeZone                string `json:"timeZone"`
}

// Defaults returns the settings used when the notebook has none stored.
func Defaults() Settings {
	return Settings{
		Theme:              markdown.ThemeLight,
		ExportTheme:        MatchAppTheme,
		TabLength:          4,
		ImageMaxPasteBytes: 5 << 20,
	}
}

// Validate checks field ranges. Violations wrap apperr.ErrValidation so the
// HTTP layer can answer 422.
func (s Settings) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.Theme, validation.Required, validation.By(knownTheme)),
		validation.Field(&s.ExportTheme, validation.Required, validation.By(knownExportTheme)),
		validation.Field(&s.TabLength, validation.Required, validation.Min(2), validation.Max(8)),
		validation.Field(&s.AutoSaveIntervalSeconds, validation.Min(0), validation.Max(3600)),
		validation.Field(&s.ImageStoragePath, validation.By(relativeFolder)),
		validation.Field(&s.ImageMaxPasteBytes, validation.Required, validation.Min(int64(1024))),
		validation.Field(&s.TimeZone, validation.By(loadableZone)),
	)
	if err != nil {
		return fmt.Errorf("settings: %w: %v", apperr.ErrValidation, err)
	}
	return nil
}

func knownTheme(v any) error {
	name, _ := v.(string)
	if !markdown.KnownTheme(name) {
		return fmt.Errorf("unknown theme %q", name)
	}
	return nil
}

func knownExportTheme(v any) error {
	name, _ := v.(string)
	if name == MatchAppTheme || markdown.KnownTheme(name) {
		return nil
	}
	return fmt.Errorf("unknown export theme %q", name)
}

func relativeFolder(v any) error {
	p, _ := v.(string)
	if p == "" {
		return nil
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return errors.New("must be a relative folder inside the notebook")
	}
	return nil
}

func loadableZone(v any) error {
	z, _ := v.(string)
	if z == "" {
		return nil
	}
	if _, err := time.LoadLocation(z); err != nil {
		return fmt.Errorf("unknown time zone %q", z)
	}
	return nil
}

// Store reads and writes the settings file.
type Store struct {
	files notestore.Store

	mu  sync.Mutex
	cur Settings
}

// NewStore loads the stored settings, falling back to defaults when the file
// is absent or unreadable.
func NewStore(files notestore.Store) (*Store, error) {
	s := &Store{files: files, cur: Defaults()}
	raw, err := files.Read(FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	loaded := Defaults()
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", FilePath, err)
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	s.cur = loaded
	return s, nil
}

// Current returns the active settings.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update merges a partial JSON patch onto the current settings, validates
// the result, persists it, and returns it. Unknown fields and range
// violations leave the stored settings untouched.
func (s *Store) Update(patch []byte) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	dec := json.NewDecoder(bytes.NewReader(patch))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		return Settings{}, fmt.Errorf("settings: %w: %v", apperr.ErrValidation, err)
	}
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}

	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return Settings{}, fmt.Errorf("settings: encode: %w", err)
	}
	if err := s.files.Write(FilePath, raw); err != nil {
		return Settings{}, err
	}
	s.cur = next
	return next, nil
}
