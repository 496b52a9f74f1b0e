// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, url string) {
	t.Helper()
	content := "[backend]\nurl = \"" + url + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfigFile(t, path, "http://127.0.0.1:1111")

	reloaded := make(chan *Config, 4)
	stop, err := Watch(path, func(c *Config) { reloaded <- c })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	writeConfigFile(t, path, "http://127.0.0.1:2222")

	select {
	case c := <-reloaded:
		if c.Backend.URL != "http://127.0.0.1:2222" {
			t.Errorf("Reload delivered stale config: %q", c.Backend.URL)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfigFile(t, path, "http://127.0.0.1:1111")

	fired := make(chan struct{}, 4)
	stop, err := Watch(path, func(*Config) { fired <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if err := os.WriteFile(filepath.Join(dir, "repl_history"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
		t.Error("Sibling file change triggered a reload")
	case <-time.After(2 * debounceWindow):
	}
}

func TestWatchStopSuppressesPendingReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfigFile(t, path, "http://127.0.0.1:1111")

	fired := make(chan struct{}, 4)
	stop, err := Watch(path, func(*Config) { fired <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}

	// Queue a change, then stop inside the debounce window so the
	// timer is still pending when the watch ends.
	writeConfigFile(t, path, "http://127.0.0.1:2222")
	stop()

	select {
	case <-fired:
		t.Error("Reload callback ran after stop")
	case <-time.After(2 * debounceWindow):
	}
}
