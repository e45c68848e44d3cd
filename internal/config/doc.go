// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package config provides configuration loading for gh-dir-diff.
//
// TOML configuration with sensible defaults, environment variable
// overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - OAuthConfig: GitHub OAuth app credentials
//   - RateLimitConfig: Per-client request limits
//   - Watcher: fsnotify-based hot reload of the config file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GHDIRDIFF_*)
//   - ~/.gh-dir-diff/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// React to config file edits:
//
//	w, _ := config.NewWatcher(path, func(cfg *config.Config) { ... })
//	w.Watch()
//	defer w.Close()
package config
