// gh-dir-diff - directory-filtered diffs between GitHub refs.
//
// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kleewho/gh-dir-diff/internal/cache"
	"github.com/kleewho/gh-dir-diff/internal/config"
	"github.com/kleewho/gh-dir-diff/internal/github"
	"github.com/kleewho/gh-dir-diff/internal/server"
	"github.com/kleewho/gh-dir-diff/internal/state"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gh-dir-diff: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to config file (default: ~/.gh-dir-diff/config.toml)")
		addr        = flag.String("addr", "", "listen address, overrides config")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("gh-dir-diff %s\n", Version)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	stateKey, err := loadStateKey(cfg)
	if err != nil {
		return fmt.Errorf("state key: %w", err)
	}

	gh := buildGitHubClient(cfg)

	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = cache.Open(cfg.Cache.Path)
		if err != nil {
			// Caching is an optimization, not a requirement.
			log.Printf("CACHE_OPEN_FAILED | path=%s error=%v", cfg.Cache.Path, err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	srv := server.New(cfg, gh, store, stateKey, Version)

	// Hot-reload watcher, only when a config file is in play. OAuth
	// credential changes are picked up live; address and cache changes
	// still need a restart.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(next *config.Config) {
			srv.SwapGitHubClient(buildGitHubClient(next))
			if next.Server.Addr != cfg.Server.Addr {
				log.Printf("CONFIG_APPLY_DEFERRED | addr=%s note=restart required", next.Server.Addr)
			}
		})
		if err != nil {
			log.Printf("CONFIG_WATCH_FAILED | error=%v", err)
		} else if err := watcher.Watch(); err != nil {
			log.Printf("CONFIG_WATCH_FAILED | error=%v", err)
		} else {
			defer watcher.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildGitHubClient constructs the API client from config.
func buildGitHubClient(cfg *config.Config) *github.Client {
	return github.NewClient(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret).
		WithAPIBaseURL(cfg.GitHub.APIBaseURL).
		WithOAuthBaseURL(cfg.GitHub.OAuthBaseURL).
		WithScope(cfg.OAuth.Scope).
		WithMaxRetries(cfg.GitHub.MaxRetries)
}

// loadConfig picks the explicit path when given, the default location
// otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// loadStateKey prefers a configured secret, deriving the signing key
// from it; otherwise it loads (or generates) the key file on disk so
// state tokens survive restarts.
func loadStateKey(cfg *config.Config) ([]byte, error) {
	if cfg.State.Secret != "" {
		return state.DeriveKey(cfg.State.Secret), nil
	}
	return state.LoadKey(cfg.State.KeyDir)
}
