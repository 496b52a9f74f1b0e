// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of filesystem events editors emit
// for a single save.
const debounceWindow = 200 * time.Millisecond

// Watch reloads the config file whenever it changes on disk and hands
// the validated result to onChange. The watcher observes the parent
// directory so atomic save-by-rename (which replaces the inode) keeps
// working. The returned stop function ends the watch.
func Watch(path string, onChange func(*Config)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	// The debounce timer fires on its own goroutine, so a reload can
	// race stop. The mutex-guarded flag keeps onChange from running
	// after stop returns, even for a timer that already fired.
	done := make(chan struct{})
	var mu sync.Mutex
	stopped := false

	go func() {
		var timer *time.Timer
		reload := func() {
			mu.Lock()
			defer mu.Unlock()
			if stopped {
				return
			}
			cfg, err := LoadFrom(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: config reload failed: %v\n", err)
				return
			}
			onChange(cfg)
		}
		for {
			select {
			case <-done:
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounceWindow, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Fprintf(os.Stderr, "warning: config watcher: %v\n", err)
			}
		}
	}()

	return func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		close(done)
		watcher.Close()
	}, nil
}
