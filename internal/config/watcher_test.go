// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"testing"
	"time"
)

func TestWatcherReload(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9090"
`)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("[server]\naddr = \":7070\"\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Server.Addr != ":7070" {
			t.Errorf("reloaded addr = %q, want :7070", cfg.Server.Addr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherKeepsOldConfigOnBadEdit(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9090"
`)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("[server\nbroken"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		t.Errorf("broken config should not reach the callback: %+v", cfg)
	case <-time.After(2 * time.Second):
		// No callback, the previous configuration stays in effect.
	}
}
