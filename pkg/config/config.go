// Package config loads YAML configuration files, expanding ${VAR} references
// from the environment before decoding.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is implemented by configuration types that can check themselves
// after decoding.
type Validator interface {
	Validate() error
}

// Load reads filename, expands environment references, decodes the YAML into
// target, and runs target's Validate if it implements Validator.
func Load[T any](filename string, target *T) error {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", filename, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), target); err != nil {
		return fmt.Errorf("config: parse %s: %w", filename, err)
	}
	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: validate %s: %w", filename, err)
		}
	}
	return nil
}

// LoadIfPresent behaves like Load but leaves target untouched and reports no
// error when filename does not exist. Validation still runs so that defaults
// assembled by the caller are checked.
func LoadIfPresent[T any](filename string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, fs.ErrNotExist) {
		if v, ok := any(target).(Validator); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("config: validate defaults: %w", err)
			}
		}
		return nil
	}
	return Load(filename, target)
}
