// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kleewho/gh-dir-diff/internal/cache"
	"github.com/kleewho/gh-dir-diff/internal/config"
	"github.com/kleewho/gh-dir-diff/internal/diff"
	"github.com/kleewho/gh-dir-diff/internal/github"
	"github.com/kleewho/gh-dir-diff/internal/glob"
	"github.com/kleewho/gh-dir-diff/internal/session"
	"github.com/kleewho/gh-dir-diff/internal/shareurl"
	"github.com/kleewho/gh-dir-diff/internal/state"
	"github.com/kleewho/gh-dir-diff/internal/util"
)

// ============================================================================
// Constants
// ============================================================================

// stateCookieName is the cookie carrying the signed CSRF state token
// between /login and /callback.
const stateCookieName = "gh_dir_diff_state"

// stateCookieMaxAge matches the state token TTL.
const stateCookieMaxAge = int(state.TTL / time.Second)

// callbackFailure is the single reason returned for every callback
// verification failure, so responses reveal nothing about which check
// rejected the request.
const callbackFailure = "authorization failed"

// maxFilterLen bounds the filter query parameter; longer patterns are
// rejected rather than compiled.
const maxFilterLen = 512

// ============================================================================
// Server
// ============================================================================

// Stats tracks request counters for the health endpoint.
type Stats struct {
	Requests  atomic.Int64
	Compares  atomic.Int64
	CacheHits atomic.Int64
	Logins    atomic.Int64
}

// Server is the HTTP server exposing the OAuth redirect flow and the
// compare API.
type Server struct {
	cfg      *config.Config
	store    *cache.Store // nil when caching is disabled
	stateKey []byte
	version  string
	stats    Stats

	// mu guards github, which the config watcher may swap at runtime
	// when OAuth credentials change.
	mu     sync.RWMutex
	github *github.Client

	router *http.ServeMux
	server *http.Server
	start  time.Time
}

// New creates a Server. store may be nil to disable compare caching.
func New(cfg *config.Config, gh *github.Client, store *cache.Store, stateKey []byte, version string) *Server {
	s := &Server{
		cfg:      cfg,
		github:   gh,
		store:    store,
		stateKey: stateKey,
		version:  version,
		router:   http.NewServeMux(),
		start:    time.Now(),
	}
	s.setupRoutes()
	return s
}

// ghClient returns the current GitHub client.
func (s *Server) ghClient() *github.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.github
}

// SwapGitHubClient replaces the GitHub client, picking up reloaded
// OAuth credentials without a restart. In-flight requests finish on
// the client they started with.
func (s *Server) SwapGitHubClient(gh *github.Client) {
	s.mu.Lock()
	s.github = gh
	s.mu.Unlock()
	log.Printf("OAUTH_CLIENT_SWAPPED")
}

// setupRoutes registers all HTTP endpoints.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /login", s.handleLogin)
	s.router.HandleFunc("GET /callback", s.handleCallback)
	s.router.HandleFunc("GET /api/compare/{owner}/{repo}/{basehead...}", s.handleCompare)
	s.router.HandleFunc("GET /"+shareurl.Prefix+"/{rest...}", s.handleShareLink)
	s.router.HandleFunc("GET /healthz", s.handleHealthz)
}

// Handler returns the full middleware-wrapped handler. Exposed for
// tests; Start uses it internally.
func (s *Server) Handler() http.Handler {
	limiter := NewRateLimiter(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst)

	chain := Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
		RateLimitMiddleware(limiter),
		CORSMiddleware(&CORSConfig{
			AllowedOrigin: s.allowedOrigin(),
			MaxAge:        3600,
		}),
	)
	return chain(s.router)
}

// allowedOrigin resolves the CORS origin: the configured value, or the
// frontend URL's origin when none is set.
func (s *Server) allowedOrigin() string {
	if s.cfg.Server.AllowedOrigin != "" {
		return s.cfg.Server.AllowedOrigin
	}
	u, err := url.Parse(s.cfg.Server.FrontendURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Start begins listening on the configured address. Blocks until the
// server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s cache=%t",
		s.cfg.Server.Addr, s.version, s.store != nil)

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight
// requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | uptime=%s requests=%d",
		time.Since(s.start).Round(time.Second), s.stats.Requests.Load())
	return s.server.Shutdown(ctx)
}

// ============================================================================
// OAuth Handlers
// ============================================================================

// handleLogin issues a fresh signed state token, sets it as a cookie,
// and redirects the browser to the GitHub authorize page with the same
// token as the state parameter.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.stats.Requests.Add(1)

	signed := state.Sign(state.New(time.Now()), s.stateKey)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})

	log.Printf("LOGIN_REDIRECT | ip=%s", GetClientIP(r))
	http.Redirect(w, r, s.ghClient().AuthorizeURL(signed), http.StatusFound)
}

// handleCallback completes the OAuth flow: the state query parameter
// must match the cookie byte for byte and carry a valid, unexpired
// signature. Every failure gets the same generic 400.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	s.stats.Requests.Add(1)

	clearCookie := &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}

	fail := func(reason string) {
		log.Printf("CALLBACK_REJECTED | ip=%s reason=%s", GetClientIP(r), reason)
		http.SetCookie(w, clearCookie)
		http.Error(w, callbackFailure, http.StatusBadRequest)
	}

	query := r.URL.Query()
	stateParam := query.Get("state")
	code := query.Get("code")
	if stateParam == "" || code == "" {
		fail("missing_params")
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		fail("missing_cookie")
		return
	}
	if cookie.Value != stateParam {
		fail("state_mismatch")
		return
	}
	if _, ok := state.Verify(stateParam, s.stateKey, time.Now()); !ok {
		fail("invalid_state")
		return
	}

	token, err := s.ghClient().ExchangeCode(r.Context(), code)
	if err != nil {
		fail("exchange_failed")
		return
	}

	s.stats.Logins.Add(1)
	log.Printf("LOGIN_OK | ip=%s fingerprint=%s",
		GetClientIP(r), github.TokenFingerprint(token))

	http.SetCookie(w, clearCookie)
	http.Redirect(w, r, s.cfg.Server.FrontendURL+"#access_token="+url.QueryEscape(token), http.StatusFound)
}

// ============================================================================
// Compare Handler
// ============================================================================

// handleCompare fetches a ref comparison, filters it by the optional
// glob pattern, and returns the assembled unified diff with summary
// counts.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	s.stats.Requests.Add(1)
	s.stats.Compares.Add(1)

	owner := r.PathValue("owner")
	repo := r.PathValue("repo")
	base, head, ok := splitBasehead(r.PathValue("basehead"))
	if !ok {
		writeError(w, http.StatusBadRequest, "basehead must be base...head")
		return
	}

	filter := r.URL.Query().Get("filter")
	if len(filter) > maxFilterLen {
		writeError(w, http.StatusBadRequest, "filter pattern too long")
		return
	}

	var match func(string) bool
	if filter != "" {
		m := glob.Compile(filter)
		match = m.Match
	}

	token, _ := session.FromRequest(r).Token()

	files, err := s.fetchCompare(r.Context(), token, owner, repo, base, head)
	if err != nil {
		s.writeCompareError(w, r, err)
		return
	}

	result := diff.Assemble(files, match)
	log.Printf("COMPARE_OK | repo=%s/%s basehead=%s...%s filter=%q result=%s",
		owner, repo, base, head, util.TruncateRunes(filter, 64), result.Summary())

	writeJSON(w, http.StatusOK, result)
}

// splitBasehead splits "base...head". The two-dot form is accepted as
// well since share URLs use it.
func splitBasehead(basehead string) (base, head string, ok bool) {
	base, head, found := strings.Cut(basehead, "...")
	if !found {
		base, head, found = strings.Cut(basehead, "..")
	}
	if !found || base == "" || head == "" {
		return "", "", false
	}
	return base, head, true
}

// fetchCompare returns the file changes for a comparison, revalidating
// a cached copy with a conditional request when the cache is enabled.
// A 304 from the API confirms the cached files without spending a
// rate-limit credit.
func (s *Server) fetchCompare(ctx context.Context, token, owner, repo, base, head string) ([]diff.FileChange, error) {
	gh := s.ghClient()
	if s.store == nil {
		return gh.Compare(ctx, token, owner, repo, base, head)
	}

	key := cache.Key(owner, repo, base, head)
	entry, cached, err := s.store.Get(ctx, key)
	if err != nil {
		log.Printf("CACHE_READ_FAILED | key=%s error=%v", key, err)
		cached = false
	}

	etag := ""
	if cached {
		etag = entry.ETag
	}

	files, newETag, notModified, err := gh.CompareConditional(ctx, token, owner, repo, base, head, etag)
	if err != nil {
		return nil, err
	}
	if notModified {
		s.stats.CacheHits.Add(1)
		log.Printf("CACHE_HIT | key=%s", key)
		return entry.Files, nil
	}

	if newETag != "" {
		if err := s.store.Put(ctx, key, newETag, files); err != nil {
			log.Printf("CACHE_WRITE_FAILED | key=%s error=%v", key, err)
		}
	}
	return files, nil
}

// writeCompareError maps client errors onto HTTP statuses the frontend
// can present.
func (s *Server) writeCompareError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("COMPARE_FAILED | path=%s error=%v", r.URL.Path, err)

	var rateErr *github.RateLimitError
	var apiErr *github.APIError
	switch {
	case errors.Is(err, github.ErrUnknownRef):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, github.ErrAuthFailed):
		writeError(w, http.StatusUnauthorized, "GitHub rejected the access token")
	case errors.As(err, &rateErr):
		writeError(w, http.StatusTooManyRequests, rateErr.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, "GitHub API error: "+apiErr.Message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "comparison timed out")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ============================================================================
// Share Link Handler
// ============================================================================

// handleShareLink bounces a shareable URL to the frontend, which owns
// the rendering. The link is parsed first so broken links get a 404
// here instead of a blank page there.
func (s *Server) handleShareLink(w http.ResponseWriter, r *http.Request) {
	s.stats.Requests.Add(1)

	params, err := shareurl.Parse(r.URL.Path, r.URL.RawQuery)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	log.Printf("SHARE_LINK | repo=%s basehead=%s..%s", params.Repo, params.Base, params.Head)
	http.Redirect(w, r, s.cfg.Server.FrontendURL+shareurl.Encode(params), http.StatusFound)
}

// ============================================================================
// Health Handler
// ============================================================================

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Uptime         string `json:"uptime"`
	CacheEnabled   bool   `json:"cacheEnabled"`
	CachedCompares int    `json:"cachedCompares"`
	Requests       int64  `json:"requests"`
	Compares       int64  `json:"compares"`
	CacheHits      int64  `json:"cacheHits"`
	Logins         int64  `json:"logins"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.stats.Requests.Add(1)

	cached := 0
	if s.store != nil {
		n, err := s.store.Len(r.Context())
		if err != nil {
			log.Printf("CACHE_LEN_FAILED | error=%v", err)
		} else {
			cached = n
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Version:        s.version,
		Uptime:         time.Since(s.start).Round(time.Second).String(),
		CacheEnabled:   s.store != nil,
		CachedCompares: cached,
		Requests:       s.stats.Requests.Load(),
		Compares:       s.stats.Compares.Load(),
		CacheHits:      s.stats.CacheHits.Load(),
		Logins:         s.stats.Logins.Load(),
	})
}

// ============================================================================
// Response Helpers
// ============================================================================

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("RESPONSE_ENCODE_FAILED | error=%v", err)
	}
}

// errorResponse is the JSON body for API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
