// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates vizchat configuration: TOML file
// at ~/.vizchat/config.toml, overridden by VIZCHAT_* environment
// variables, with defaults for everything.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/vizchat-tui/internal/util"
)

// =============================================================================
// TYPES
// =============================================================================

// Config is the root configuration.
type Config struct {
	Backend   BackendConfig   `toml:"backend"`
	Workspace WorkspaceConfig `toml:"workspace"`
	Stream    StreamConfig    `toml:"stream"`
	Diagram   DiagramConfig   `toml:"diagram"`
	History   HistoryConfig   `toml:"history"`
	UI        UIConfig        `toml:"ui"`
}

// BackendConfig locates the assistant backend.
type BackendConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WorkspaceConfig scopes conversations to a workspace.
type WorkspaceConfig struct {
	ID              string   `toml:"id"`
	SelectedFileIDs []string `toml:"selected_file_ids"`
}

// StreamConfig tunes the streamed rendering path.
type StreamConfig struct {
	// FlushIntervalMs throttles transcript updates. 16 is ~60 Hz.
	FlushIntervalMs int `toml:"flush_interval_ms"`

	// HistoryLimit caps conversation_history turns sent per query.
	HistoryLimit int `toml:"history_limit"`
}

// DiagramConfig tunes diagram generation.
type DiagramConfig struct {
	Enabled          bool `toml:"enabled"`
	AugmentPerMinute int  `toml:"augment_per_minute"`
}

// HistoryConfig locates local conversation persistence.
type HistoryConfig struct {
	Path string `toml:"path"`
}

// UIConfig tunes rendering.
type UIConfig struct {
	MarkdownWidth  int  `toml:"markdown_width"`
	ShowTimestamps bool `toml:"show_timestamps"`
}

// =============================================================================
// DEFAULTS AND PATHS
// =============================================================================

// Dir returns the vizchat configuration directory (~/.vizchat),
// creating it if missing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".vizchat")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:            "http://127.0.0.1:8787",
			TimeoutSeconds: 60,
		},
		Stream: StreamConfig{
			FlushIntervalMs: 16,
			HistoryLimit:    10,
		},
		Diagram: DiagramConfig{
			Enabled:          true,
			AugmentPerMinute: 4,
		},
		UI: UIConfig{
			MarkdownWidth: 100,
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file (if present), applies environment
// overrides, and validates. A missing file is not an error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads a specific config file path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.Validate()
	return cfg, nil
}

// applyEnv overlays VIZCHAT_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("VIZCHAT_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("VIZCHAT_BACKEND_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backend.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("VIZCHAT_WORKSPACE"); v != "" {
		c.Workspace.ID = v
	}
	if v := os.Getenv("VIZCHAT_FLUSH_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Stream.FlushIntervalMs = n
		}
	}
	if v := os.Getenv("VIZCHAT_DIAGRAMS"); v != "" {
		c.Diagram.Enabled = parseBool(v, c.Diagram.Enabled)
	}
	if v := os.Getenv("VIZCHAT_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
}

func parseBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

// Validate clamps out-of-range values back to sane defaults. It never
// fails; a bad config degrades to a working one.
func (c *Config) Validate() {
	if c.Backend.URL == "" {
		c.Backend.URL = Default().Backend.URL
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 60
	}
	if c.Stream.FlushIntervalMs < 1 || c.Stream.FlushIntervalMs > 1000 {
		c.Stream.FlushIntervalMs = 16
	}
	if c.Stream.HistoryLimit <= 0 || c.Stream.HistoryLimit > 100 {
		c.Stream.HistoryLimit = 10
	}
	if c.Diagram.AugmentPerMinute <= 0 || c.Diagram.AugmentPerMinute > 60 {
		c.Diagram.AugmentPerMinute = 4
	}
	if c.UI.MarkdownWidth < 40 || c.UI.MarkdownWidth > 400 {
		c.UI.MarkdownWidth = 100
	}
}

// HistoryPath resolves the local history database location, defaulting
// to ~/.vizchat/history.db.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// Save writes the config file atomically.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0o644)
}

// =============================================================================
// GLOBAL ACCESS
// =============================================================================

var (
	globalOnce sync.Once
	globalCfg  *Config
)

// Global returns the process-wide configuration, loading it on first
// use. Load errors fall back to defaults with a stderr warning.
func Global() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: using default config: %v\n", err)
			cfg = Default()
		}
		globalCfg = cfg
	})
	return globalCfg
}
