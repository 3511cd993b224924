package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Notebook NotebookConfig    `yaml:"notebook"`
	Client   ClientConfig      `yaml:"client"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Notebook.Validate(); err != nil {
		return err
	}
	return c.Client.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP listen address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// NotebookConfig locates the notebook on disk.
//
// Path is the root directory holding notes, folders and images. StaticDir,
// when set, is a directory of frontend assets served at the site root.
type NotebookConfig struct {
	Path      string `yaml:"path"`
	StaticDir string `yaml:"static_dir"`
}

// Validate validates the notebook configuration.
func (c *NotebookConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ClientConfig holds settings for the terminal client.
//
// StateFile is where the client remembers the last opened note. Empty means
// a default location under the user config directory.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	StateFile string `yaml:"state_file"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServerURL, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Notebook: NotebookConfig{
			Path: "./notebook",
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:8080",
		},
	}
}
