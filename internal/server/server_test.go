// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kleewho/gh-dir-diff/internal/cache"
	"github.com/kleewho/gh-dir-diff/internal/config"
	"github.com/kleewho/gh-dir-diff/internal/diff"
	"github.com/kleewho/gh-dir-diff/internal/github"
	"github.com/kleewho/gh-dir-diff/internal/state"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// testConfig returns a config suitable for handler tests.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.FrontendURL = "http://localhost:5173"
	cfg.OAuth.ClientID = "test-client-id"
	cfg.OAuth.ClientSecret = "test-client-secret"
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	return cfg
}

// newTestServer wires a Server against a fake GitHub reachable at
// baseURL for both the API and OAuth endpoints.
func newTestServer(t *testing.T, baseURL string, store *cache.Store) *Server {
	t.Helper()
	cfg := testConfig()
	gh := github.NewClient(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret).
		WithAPIBaseURL(baseURL).
		WithOAuthBaseURL(baseURL).
		WithMaxRetries(1)
	return New(cfg, gh, store, testKey, "test")
}

// fakeGitHub serves compare and token-exchange responses.
func fakeGitHub(t *testing.T, files []diff.FileChange) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "Not Found"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"files": files})
	})
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("code") != "good-code" {
			json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "gho_testtoken",
			"token_type":   "bearer",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func sampleFiles() []diff.FileChange {
	return []diff.FileChange{
		{
			Filename:  "src/main.go",
			Status:    "modified",
			Patch:     "@@ -1 +1 @@\n-old\n+new",
			Additions: 1,
			Deletions: 1,
		},
		{
			Filename:  "docs/readme.md",
			Status:    "added",
			Patch:     "@@ -0,0 +1 @@\n+hello",
			Additions: 1,
		},
	}
}

// ============================================================================
// Login
// ============================================================================

func TestLoginSetsStateCookieAndRedirects(t *testing.T) {
	gh := fakeGitHub(t, nil)
	srv := newTestServer(t, gh.URL, nil)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			stateCookie = c
		}
	}
	if stateCookie == nil {
		t.Fatal("state cookie not set")
	}
	if !stateCookie.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if !stateCookie.Secure {
		t.Error("cookie should be Secure")
	}
	if stateCookie.SameSite != http.SameSiteNoneMode {
		t.Errorf("SameSite = %v, want None", stateCookie.SameSite)
	}
	if stateCookie.MaxAge != stateCookieMaxAge {
		t.Errorf("MaxAge = %d, want %d", stateCookie.MaxAge, stateCookieMaxAge)
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad redirect location: %v", err)
	}
	if loc.Path != "/login/oauth/authorize" {
		t.Errorf("redirect path = %q, want /login/oauth/authorize", loc.Path)
	}
	if got := loc.Query().Get("state"); got != stateCookie.Value {
		t.Errorf("state param %q does not match cookie %q", got, stateCookie.Value)
	}
	if _, ok := state.Verify(stateCookie.Value, testKey, time.Now()); !ok {
		t.Error("issued state does not verify")
	}
}

func TestSwapGitHubClientChangesAuthorizeURL(t *testing.T) {
	gh := fakeGitHub(t, nil)
	srv := newTestServer(t, gh.URL, nil)

	srv.SwapGitHubClient(github.NewClient("rotated-id", "rotated-secret").WithOAuthBaseURL(gh.URL))

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/login", nil))

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad redirect location: %v", err)
	}
	if got := loc.Query().Get("client_id"); got != "rotated-id" {
		t.Errorf("client_id = %q, want rotated-id", got)
	}
}

// ============================================================================
// Callback
// ============================================================================

func TestCallbackSuccess(t *testing.T) {
	gh := fakeGitHub(t, nil)
	srv := newTestServer(t, gh.URL, nil)

	signed := state.Sign(state.New(time.Now()), testKey)

	req := httptest.NewRequest("GET", "/callback?state="+url.QueryEscape(signed)+"&code=good-code", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: signed})

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302: %s", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "http://localhost:5173#access_token=") {
		t.Errorf("redirect = %q, want frontend fragment redirect", loc)
	}
	if !strings.Contains(loc, "gho_testtoken") {
		t.Errorf("redirect %q missing access token", loc)
	}

	// The state cookie must be cleared after use.
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName && c.MaxAge >= 0 {
			t.Error("state cookie not cleared")
		}
	}
}

func TestCallbackRejections(t *testing.T) {
	gh := fakeGitHub(t, nil)
	srv := newTestServer(t, gh.URL, nil)

	signed := state.Sign(state.New(time.Now()), testKey)
	otherKey := []byte("ffffffffffffffffffffffffffffffff")
	forged := state.Sign(state.New(time.Now()), otherKey)
	expired := state.Sign(state.New(time.Now().Add(-state.TTL-time.Minute)), testKey)

	tests := []struct {
		name   string
		query  string
		cookie string
	}{
		{"missing state", "code=good-code", signed},
		{"missing code", "state=" + url.QueryEscape(signed), signed},
		{"no cookie", "state=" + url.QueryEscape(signed) + "&code=good-code", ""},
		{"cookie mismatch", "state=" + url.QueryEscape(signed) + "&code=good-code", forged},
		{"forged signature", "state=" + url.QueryEscape(forged) + "&code=good-code", forged},
		{"expired state", "state=" + url.QueryEscape(expired) + "&code=good-code", expired},
		{"bad code", "state=" + url.QueryEscape(signed) + "&code=bad-code", signed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/callback?"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: stateCookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			srv.router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			// Every rejection uses the same body so responses never
			// reveal which check failed.
			if got := strings.TrimSpace(rec.Body.String()); got != callbackFailure {
				t.Errorf("body = %q, want %q", got, callbackFailure)
			}
		})
	}
}

// ============================================================================
// Compare
// ============================================================================

func TestCompare(t *testing.T) {
	gh := fakeGitHub(t, sampleFiles())
	srv := newTestServer(t, gh.URL, nil)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/compare/octo/repo/main...feature", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var result diff.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Files != 2 {
		t.Errorf("fileCount = %d, want 2", result.Files)
	}
	if result.Additions != 2 || result.Deletions != 1 {
		t.Errorf("counts = +%d -%d, want +2 -1", result.Additions, result.Deletions)
	}
	if !strings.Contains(result.Diff, "diff --git a/src/main.go b/src/main.go") {
		t.Errorf("diff missing file section:\n%s", result.Diff)
	}
}

func TestCompareWithFilter(t *testing.T) {
	gh := fakeGitHub(t, sampleFiles())
	srv := newTestServer(t, gh.URL, nil)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/compare/octo/repo/main...feature?filter="+url.QueryEscape("src/**/*.go"), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var result diff.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Files != 1 {
		t.Errorf("fileCount = %d, want 1", result.Files)
	}
	if strings.Contains(result.Diff, "readme.md") {
		t.Error("filtered file present in diff")
	}
}

func TestCompareTwoDotBasehead(t *testing.T) {
	gh := fakeGitHub(t, sampleFiles())
	srv := newTestServer(t, gh.URL, nil)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/compare/octo/repo/main..feature", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCompareErrors(t *testing.T) {
	gh := fakeGitHub(t, sampleFiles())
	srv := newTestServer(t, gh.URL, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"unknown ref", "/api/compare/octo/repo/main...missing", http.StatusNotFound},
		{"malformed basehead", "/api/compare/octo/repo/nodots", http.StatusBadRequest},
		{"empty head", "/api/compare/octo/repo/main...", http.StatusBadRequest},
		{"oversized filter", "/api/compare/octo/repo/a...b?filter=" + strings.Repeat("x", maxFilterLen+1), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.router.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("error body not JSON: %v", err)
			}
			if body.Error == "" {
				t.Error("error body missing message")
			}
		})
	}
}

func TestCompareForwardsBearerToken(t *testing.T) {
	var gotAuthz string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/", func(w http.ResponseWriter, r *http.Request) {
		gotAuthz = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"files": []diff.FileChange{}})
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL, nil)

	req := httptest.NewRequest("GET", "/api/compare/octo/private/a...b", nil)
	req.Header.Set("Authorization", "Bearer gho_usertoken")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if gotAuthz != "Bearer gho_usertoken" {
		t.Errorf("upstream Authorization = %q, want forwarded token", gotAuthz)
	}
}

func TestCompareUsesCacheOnRevalidation(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"etag-1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"etag-1"`)
		json.NewEncoder(w).Encode(map[string]any{"files": sampleFiles()})
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	store, err := cache.Open(t.TempDir() + "/compare.db")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	srv := newTestServer(t, upstream.URL, store)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/compare/octo/repo/main...feature", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d: %s", i, rec.Code, rec.Body.String())
		}
		var result diff.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if result.Files != 2 {
			t.Errorf("request %d: fileCount = %d, want 2", i, result.Files)
		}
	}

	if calls != 2 {
		t.Errorf("upstream calls = %d, want 2 (fetch then revalidation)", calls)
	}
	if got := srv.stats.CacheHits.Load(); got != 1 {
		t.Errorf("cache hits = %d, want 1", got)
	}

	// The health endpoint reports the cache contents.
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	var health healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if !health.CacheEnabled {
		t.Error("cacheEnabled = false, want true")
	}
	if health.CachedCompares != 1 {
		t.Errorf("cachedCompares = %d, want 1", health.CachedCompares)
	}
	if health.CacheHits != 1 {
		t.Errorf("cacheHits = %d, want 1", health.CacheHits)
	}
}

// ============================================================================
// Share Links
// ============================================================================

func TestShareLinkRedirectsToFrontend(t *testing.T) {
	gh := fakeGitHub(t, nil)
	srv := newTestServer(t, gh.URL, nil)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/gh-dir-diff/octo/repo/main..feat/x?filter=**%2F*.ts", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	want := "http://localhost:5173/gh-dir-diff/octo/repo/main..feat/x?filter=**%2F*.ts"
	if got := rec.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestShareLinkMalformed(t *testing.T) {
	gh := fakeGitHub(t, nil)
	srv := newTestServer(t, gh.URL, nil)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/gh-dir-diff/octo/repo/nodots", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// ============================================================================
// Health
// ============================================================================

func TestHealthz(t *testing.T) {
	gh := fakeGitHub(t, nil)
	srv := newTestServer(t, gh.URL, nil)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("version = %q, want test", health.Version)
	}
	if health.CacheEnabled {
		t.Error("cacheEnabled = true, want false")
	}
}

func TestUnknownRoute(t *testing.T) {
	gh := fakeGitHub(t, nil)
	srv := newTestServer(t, gh.URL, nil)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// ============================================================================
// splitBasehead
// ============================================================================

func TestSplitBasehead(t *testing.T) {
	tests := []struct {
		in   string
		base string
		head string
		ok   bool
	}{
		{"main...feature", "main", "feature", true},
		{"main..feature", "main", "feature", true},
		{"v1.0.0...v2.0.0", "v1.0.0", "v2.0.0", true},
		{"release/1.0...hotfix/x", "release/1.0", "hotfix/x", true},
		{"nodots", "", "", false},
		{"...head", "", "", false},
		{"base...", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		base, head, ok := splitBasehead(tt.in)
		if base != tt.base || head != tt.head || ok != tt.ok {
			t.Errorf("splitBasehead(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, base, head, ok, tt.base, tt.head, tt.ok)
		}
	}
}
