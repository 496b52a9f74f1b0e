// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Validate()

	if cfg.Backend.URL == "" {
		t.Error("Default backend URL missing")
	}
	if cfg.Stream.FlushIntervalMs != 16 {
		t.Errorf("Expected default flush interval 16ms, got %d", cfg.Stream.FlushIntervalMs)
	}
	if cfg.Stream.HistoryLimit != 10 {
		t.Errorf("Expected default history limit 10, got %d", cfg.Stream.HistoryLimit)
	}
	if !cfg.Diagram.Enabled {
		t.Error("Diagrams should default on")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[backend]
url = "http://10.0.0.5:9000"
timeout_seconds = 30

[workspace]
id = "ws-42"
selected_file_ids = ["f1", "f2"]

[stream]
flush_interval_ms = 33

[diagram]
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Backend.URL != "http://10.0.0.5:9000" {
		t.Errorf("Backend URL not loaded: %q", cfg.Backend.URL)
	}
	if cfg.Workspace.ID != "ws-42" {
		t.Errorf("Workspace not loaded: %q", cfg.Workspace.ID)
	}
	if len(cfg.Workspace.SelectedFileIDs) != 2 {
		t.Errorf("Selected files not loaded: %v", cfg.Workspace.SelectedFileIDs)
	}
	if cfg.Stream.FlushIntervalMs != 33 {
		t.Errorf("Flush interval not loaded: %d", cfg.Stream.FlushIntervalMs)
	}
	if cfg.Diagram.Enabled {
		t.Error("Diagram disable not loaded")
	}
	// Unset sections keep defaults.
	if cfg.Stream.HistoryLimit != 10 {
		t.Errorf("Default history limit lost: %d", cfg.Stream.HistoryLimit)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Missing file must not be an error: %v", err)
	}
	if cfg.Backend.URL != Default().Backend.URL {
		t.Errorf("Expected defaults, got %q", cfg.Backend.URL)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VIZCHAT_BACKEND_URL", "http://env:1234")
	t.Setenv("VIZCHAT_WORKSPACE", "env-ws")
	t.Setenv("VIZCHAT_FLUSH_MS", "50")
	t.Setenv("VIZCHAT_DIAGRAMS", "off")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Backend.URL != "http://env:1234" {
		t.Errorf("Env URL override ignored: %q", cfg.Backend.URL)
	}
	if cfg.Workspace.ID != "env-ws" {
		t.Errorf("Env workspace override ignored: %q", cfg.Workspace.ID)
	}
	if cfg.Stream.FlushIntervalMs != 50 {
		t.Errorf("Env flush override ignored: %d", cfg.Stream.FlushIntervalMs)
	}
	if cfg.Diagram.Enabled {
		t.Error("Env diagram override ignored")
	}
}

func TestValidateClampsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Stream.FlushIntervalMs = 0
	cfg.Stream.HistoryLimit = -5
	cfg.Backend.TimeoutSeconds = -1
	cfg.Diagram.AugmentPerMinute = 10000
	cfg.UI.MarkdownWidth = 5

	cfg.Validate()

	if cfg.Stream.FlushIntervalMs != 16 {
		t.Errorf("Flush interval not clamped: %d", cfg.Stream.FlushIntervalMs)
	}
	if cfg.Stream.HistoryLimit != 10 {
		t.Errorf("History limit not clamped: %d", cfg.Stream.HistoryLimit)
	}
	if cfg.Backend.TimeoutSeconds != 60 {
		t.Errorf("Timeout not clamped: %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Diagram.AugmentPerMinute != 4 {
		t.Errorf("Augment rate not clamped: %d", cfg.Diagram.AugmentPerMinute)
	}
	if cfg.UI.MarkdownWidth != 100 {
		t.Errorf("Markdown width not clamped: %d", cfg.UI.MarkdownWidth)
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"1", "true", "YES", "On"}
	falsy := []string{"0", "false", "NO", "off"}

	for _, v := range truthy {
		if !parseBool(v, false) {
			t.Errorf("parseBool(%q) should be true", v)
		}
	}
	for _, v := range falsy {
		if parseBool(v, true) {
			t.Errorf("parseBool(%q) should be false", v)
		}
	}
	if !parseBool("garbage", true) || parseBool("garbage", false) {
		t.Error("Unparseable value must keep the fallback")
	}
}
