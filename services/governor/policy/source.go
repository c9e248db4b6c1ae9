// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/strait/pkg/logging"
)

// ConfigProvider hands out the current governance configuration
// snapshot. Implementations must return immutable configs.
type ConfigProvider interface {
	Current() *Config
}

// StaticConfig wraps a fixed configuration as a ConfigProvider. Used by
// tests and one-shot CLI checks that have no file to watch.
func StaticConfig(cfg *Config) ConfigProvider {
	return staticProvider{cfg: cfg}
}

type staticProvider struct{ cfg *Config }

func (p staticProvider) Current() *Config { return p.cfg }

// Source loads the governance configuration from a file and hot-reloads
// it when the file changes.
//
// # Description
//
// The initial load is strict: a broken config fails construction so the
// service never starts without enforceable policies. Reloads are
// forgiving: a broken edit is logged and the previous snapshot stays
// active until a valid one lands.
//
// Editors typically replace config files via rename, so the watcher
// monitors the containing directory and filters events for the config
// file name.
//
// # Thread Safety
//
// Safe for concurrent use. Current returns an immutable snapshot.
//
// # Example
//
//	source, err := policy.NewSource("governance.yaml", nil)
//	if err != nil {
//	    return err
//	}
//	go source.Watch(ctx)
//	cfg := source.Current()
type Source struct {
	path string
	log  *logging.Logger

	mu       sync.RWMutex
	current  *Config
	onReload func(*Config)

	watcher *fsnotify.Watcher
}

// NewSource loads the config at path and prepares the file watcher. A
// nil logger falls back to the process default.
func NewSource(path string, log *logging.Logger) (*Source, error) {
	if log == nil {
		log = logging.Default()
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Source{
		path:    path,
		log:     log,
		current: cfg,
		watcher: watcher,
	}, nil
}

// Current returns the active configuration snapshot.
func (s *Source) Current() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnReload registers a callback invoked with each successfully reloaded
// snapshot. Must be called before Watch.
func (s *Source) OnReload(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = fn
}

// Reload re-reads the config file. On failure the previous snapshot
// stays active and the error is returned.
func (s *Source) Reload() error {
	cfg, err := LoadConfig(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = cfg
	fn := s.onReload
	s.mu.Unlock()

	if fn != nil {
		fn(cfg)
	}
	s.log.Info("governance config reloaded", "path", s.path)
	return nil
}

// Watch blocks, reloading the config when the file changes, until the
// context is canceled. Should be run in a goroutine.
func (s *Source) Watch(ctx context.Context) {
	dir := filepath.Dir(s.path)
	if err := s.watcher.Add(dir); err != nil {
		s.log.Warn("failed to watch governance config directory",
			"dir", dir,
			"error", err)
		return
	}
	s.log.Debug("watching governance config", "path", s.path)

	base := filepath.Base(s.path)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event, base)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("governance config watcher error", "error", err)

		case <-ctx.Done():
			s.log.Debug("governance config watcher stopping")
			return
		}
	}
}

// handleEvent reprocesses the config for writes, creates, and renames
// touching the config file.
func (s *Source) handleEvent(event fsnotify.Event, base string) {
	if filepath.Base(event.Name) != base {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if err := s.Reload(); err != nil {
		s.log.Warn("governance config reload failed, keeping previous snapshot",
			"path", s.path,
			"error", err)
	}
}

// Close stops the watcher and releases resources. Safe to call multiple
// times.
func (s *Source) Close() error {
	return s.watcher.Close()
}

var _ ConfigProvider = (*Source)(nil)
