// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

const (
	appDirName     = ".loopnote"
	configFileName = "config.json"
)

// Config represents the application configuration.
type Config struct {
	// InstallID identifies this installation; generated on first save.
	InstallID string `json:"install_id,omitempty"`

	// Language is the whisper language code, "auto" to auto-detect.
	Language     string `json:"language"`
	WhisperBin   string `json:"whisper_bin"`
	WhisperModel string `json:"whisper_model"`
	Threads      int    `json:"threads"`

	ChunkSeconds   int `json:"chunk_seconds"`
	TimeoutSeconds int `json:"timeout_seconds"`
	MinChunkBytes  int `json:"min_chunk_bytes"`

	ScratchDir string `json:"scratch_dir"`
	NotesDir   string `json:"notes_dir"`

	CacheEnabled bool   `json:"cache_enabled"`
	CacheDir     string `json:"cache_dir"`
}

// DefaultPath returns the config file location, ~/.loopnote/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, appDirName, configFileName), nil
}

// Load reads the configuration from path. A missing file yields the
// default configuration, not an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(path), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults(path)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save persists the configuration to path, generating the install ID on
// first save.
func (c *Config) Save(path string) error {
	if c.InstallID == "" {
		c.InstallID = uuid.New().String()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ChunkDuration returns the chunk period as a duration.
func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.ChunkSeconds) * time.Second
}

// Timeout returns the per-chunk transcription time budget.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) applyDefaults(path string) {
	base := filepath.Dir(path)
	if c.Language == "" {
		c.Language = "auto"
	}
	if c.Threads <= 0 {
		c.Threads = 4
	}
	if c.ChunkSeconds <= 0 {
		c.ChunkSeconds = 6
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MinChunkBytes <= 0 {
		c.MinChunkBytes = 4 * 1024
	}
	if c.ScratchDir == "" {
		c.ScratchDir = filepath.Join(os.TempDir(), "loopnote")
	}
	if c.NotesDir == "" {
		c.NotesDir = filepath.Join(base, "notes")
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(base, "cache")
	}
}

// validate canonicalizes the language code: "auto" passes through, any
// other value must parse as BCP 47 and is reduced to its base code.
func (c *Config) validate() error {
	if c.Language == "auto" {
		return nil
	}
	tag, err := language.Parse(c.Language)
	if err != nil {
		return fmt.Errorf("invalid language %q: %w", c.Language, err)
	}
	base, _ := tag.Base()
	c.Language = base.String()
	return nil
}

func defaultConfig(path string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(path)
	return cfg
}
