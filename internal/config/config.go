// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package config provides configuration loading for gh-dir-diff.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - path given with -config
//   - ~/.gh-dir-diff/config.toml
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete gh-dir-diff configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	OAuth     OAuthConfig     `toml:"oauth"`
	GitHub    GitHubConfig    `toml:"github"`
	State     StateConfig     `toml:"state"`
	Cache     CacheConfig     `toml:"cache"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `toml:"addr"`
	// FrontendURL is where the callback redirects after a successful
	// login. The access token travels in the URL fragment.
	FrontendURL string `toml:"frontend_url"`
	// AllowedOrigin is the origin permitted by CORS. Empty allows the
	// frontend URL's origin.
	AllowedOrigin string `toml:"allowed_origin"`
}

// OAuthConfig contains the GitHub OAuth app credentials.
type OAuthConfig struct {
	// ClientID is the OAuth app client id.
	ClientID string `toml:"client_id"`
	// ClientSecret is the OAuth app client secret. Never logged.
	ClientSecret string `toml:"client_secret"`
	// Scope is the scope requested during authorization.
	Scope string `toml:"scope"`
}

// GitHubConfig contains GitHub API client settings.
type GitHubConfig struct {
	// APIBaseURL overrides the REST API base URL (for GitHub Enterprise).
	APIBaseURL string `toml:"api_base_url"`
	// OAuthBaseURL overrides the OAuth base URL.
	OAuthBaseURL string `toml:"oauth_base_url"`
	// MaxRetries is the attempt count for transient API errors.
	MaxRetries int `toml:"max_retries"`
}

// StateConfig controls the CSRF state-token key.
type StateConfig struct {
	// Secret is an optional passphrase the signing key is derived from.
	// When empty the key comes from the environment or the key file.
	Secret string `toml:"secret"`
	// KeyDir is where the generated key file is kept.
	KeyDir string `toml:"key_dir"`
}

// CacheConfig contains compare-cache settings.
type CacheConfig struct {
	// Enabled controls whether the compare cache is active.
	Enabled bool `toml:"enabled"`
	// Path is the SQLite database location.
	Path string `toml:"path"`
}

// RateLimitConfig contains per-client request limits.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate allowed per client IP.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	// Burst is the burst size allowed per client IP.
	Burst int `toml:"burst"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	dir, _ := ConfigDir()
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			FrontendURL: "http://localhost:5173",
		},
		OAuth: OAuthConfig{
			Scope: "repo",
		},
		GitHub: GitHubConfig{
			MaxRetries: 3,
		},
		State: StateConfig{
			KeyDir: dir,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "compares.db"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the gh-dir-diff configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".gh-dir-diff"), nil
}

// ConfigPath returns the default TOML config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens permissions on config files which
// may hold the OAuth client secret.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default file location, falling
// back to defaults when no file exists. Environment overrides are
// applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific TOML file with
// defaults, environment overrides, and validation applied.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = defaults.Server.FrontendURL
	}
	if c.OAuth.Scope == "" {
		c.OAuth.Scope = defaults.OAuth.Scope
	}
	if c.GitHub.MaxRetries == 0 {
		c.GitHub.MaxRetries = defaults.GitHub.MaxRetries
	}
	if c.State.KeyDir == "" {
		c.State.KeyDir = defaults.State.KeyDir
	}
	if c.Cache.Path == "" {
		c.Cache.Path = defaults.Cache.Path
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = defaults.RateLimit.RequestsPerSecond
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - GHDIRDIFF_ADDR: overrides server.addr
//   - GHDIRDIFF_FRONTEND_URL: overrides server.frontend_url
//   - GHDIRDIFF_ALLOWED_ORIGIN: overrides server.allowed_origin
//   - GHDIRDIFF_CLIENT_ID: overrides oauth.client_id
//   - GHDIRDIFF_CLIENT_SECRET: overrides oauth.client_secret
//   - GHDIRDIFF_API_BASE_URL: overrides github.api_base_url
//   - GHDIRDIFF_OAUTH_BASE_URL: overrides github.oauth_base_url
//   - GHDIRDIFF_STATE_SECRET: overrides state.secret
//   - GHDIRDIFF_CACHE_PATH: overrides cache.path
//   - GHDIRDIFF_CACHE_ENABLED: "1"/"true"/"0"/"false" toggles the cache
func (c *Config) ApplyEnvOverrides() {
	if addr := os.Getenv("GHDIRDIFF_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if u := os.Getenv("GHDIRDIFF_FRONTEND_URL"); u != "" {
		c.Server.FrontendURL = u
	}
	if origin := os.Getenv("GHDIRDIFF_ALLOWED_ORIGIN"); origin != "" {
		c.Server.AllowedOrigin = origin
	}
	if id := os.Getenv("GHDIRDIFF_CLIENT_ID"); id != "" {
		c.OAuth.ClientID = id
	}
	if secret := os.Getenv("GHDIRDIFF_CLIENT_SECRET"); secret != "" {
		c.OAuth.ClientSecret = secret
	}
	if u := os.Getenv("GHDIRDIFF_API_BASE_URL"); u != "" {
		c.GitHub.APIBaseURL = u
	}
	if u := os.Getenv("GHDIRDIFF_OAUTH_BASE_URL"); u != "" {
		c.GitHub.OAuthBaseURL = u
	}
	if secret := os.Getenv("GHDIRDIFF_STATE_SECRET"); secret != "" {
		c.State.Secret = secret
	}
	if path := os.Getenv("GHDIRDIFF_CACHE_PATH"); path != "" {
		c.Cache.Path = path
	}
	if enabled := os.Getenv("GHDIRDIFF_CACHE_ENABLED"); enabled != "" {
		c.Cache.Enabled = parseBool(enabled)
	}
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.ToLower(s))
	return err == nil && b
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "server.addr",
			Message: "listen address cannot be empty",
		})
	}

	if c.Server.FrontendURL != "" {
		if u, err := url.Parse(c.Server.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "server.frontend_url",
				Message: fmt.Sprintf("must be an absolute URL, got %q", c.Server.FrontendURL),
			})
		}
	}

	// A secret without its client id can never complete an exchange.
	if c.OAuth.ClientSecret != "" && c.OAuth.ClientID == "" {
		errs = append(errs, ValidationError{
			Field:   "oauth.client_id",
			Message: "client_id is required when client_secret is set",
		})
	}

	for field, u := range map[string]string{
		"github.api_base_url":   c.GitHub.APIBaseURL,
		"github.oauth_base_url": c.GitHub.OAuthBaseURL,
	} {
		if u == "" {
			continue
		}
		if parsed, err := url.Parse(u); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("must be an absolute URL, got %q", u),
			})
		}
	}

	if c.GitHub.MaxRetries < 1 || c.GitHub.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "github.max_retries",
			Message: fmt.Sprintf("must be 1-10, got %d", c.GitHub.MaxRetries),
		})
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.requests_per_second",
			Message: "cannot be negative",
		})
	}
	if c.RateLimit.Burst < 0 {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.burst",
			Message: "cannot be negative",
		})
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.burst",
			Message: "burst must be positive when a rate is set",
		})
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "cache.path",
			Message: "path is required when the cache is enabled",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation for debugging with secrets
// redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.OAuth.ClientSecret != "" {
		safe.OAuth.ClientSecret = "[REDACTED]"
	}
	if safe.State.Secret != "" {
		safe.State.Secret = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
