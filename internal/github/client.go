// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

package github

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Configuration constants for the GitHub API.
const (
	// DefaultAPIBaseURL is the base URL for the GitHub REST API.
	DefaultAPIBaseURL = "https://api.github.com"

	// DefaultOAuthBaseURL is the base URL for GitHub's OAuth endpoints.
	DefaultOAuthBaseURL = "https://github.com"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts for transient errors.
	DefaultMaxRetries = 3

	// DefaultScope is the OAuth scope requested during authorization.
	// Private-repo compares need the full repo scope.
	DefaultScope = "repo"

	// apiVersion is sent as X-GitHub-Api-Version on every REST request.
	apiVersion = "2022-11-28"

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// Compare payloads carry full patches, so the cap is generous.
	MaxResponseSize = 50 * 1024 * 1024 // 50MB
)

// sharedHTTPClient pools connections across all GitHub requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// Error variables for common GitHub API failures.
var (
	// ErrUnknownRef indicates the base or head ref was not found.
	ErrUnknownRef = errors.New("unknown ref")

	// ErrAuthFailed indicates the access token was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrExchangeFailed indicates the OAuth code exchange was rejected.
	ErrExchangeFailed = errors.New("code exchange failed")
)

// RateLimitError indicates the GitHub API rate limit is exhausted.
type RateLimitError struct {
	// Reset is when the limit window resets.
	Reset time.Time
}

// Error renders a user-readable message with the wait in minutes.
func (e *RateLimitError) Error() string {
	mins := int(time.Until(e.Reset).Round(time.Minute).Minutes())
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("GitHub API rate limit exceeded, try again in %d minute(s)", mins)
}

// APIError is a GitHub error response outside the known taxonomy.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("GitHub API error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("GitHub API error (HTTP %d)", e.Status)
}

// Client communicates with the GitHub REST and OAuth APIs.
type Client struct {
	apiBaseURL   string
	oauthBaseURL string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
	maxRetries   int
}

// NewClient creates a GitHub client for the given OAuth app credentials.
// Credentials are only required for AuthorizeURL and ExchangeCode;
// Compare works without them.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		apiBaseURL:   DefaultAPIBaseURL,
		oauthBaseURL: DefaultOAuthBaseURL,
		clientID:     strings.TrimSpace(clientID),
		clientSecret: strings.TrimSpace(clientSecret),
		scope:        DefaultScope,
		httpClient:   sharedHTTPClient,
		maxRetries:   DefaultMaxRetries,
	}
}

// WithAPIBaseURL sets a custom REST API base URL. An empty value keeps
// the default, so unset config fields pass through harmlessly.
func (c *Client) WithAPIBaseURL(url string) *Client {
	if url != "" {
		c.apiBaseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithOAuthBaseURL sets a custom OAuth base URL. An empty value keeps
// the default.
func (c *Client) WithOAuthBaseURL(url string) *Client {
	if url != "" {
		c.oauthBaseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithHTTPClient sets a custom HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithMaxRetries sets the maximum number of attempts per request.
// Values below 1 keep the default.
func (c *Client) WithMaxRetries(n int) *Client {
	if n >= 1 {
		c.maxRetries = n
	}
	return c
}

// WithScope sets the OAuth scope requested during authorization. An
// empty value keeps the default.
func (c *Client) WithScope(scope string) *Client {
	if scope != "" {
		c.scope = scope
	}
	return c
}

// TokenFingerprint returns a short SHA-256 fingerprint of a token for
// logging. The token itself is never logged.
func TokenFingerprint(token string) string {
	if token == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// REQUEST EXECUTION
// =============================================================================

// doWithRetry performs a request, retrying 5xx responses and transport
// errors with exponential backoff. The caller owns the response body.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		reqCopy := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			// The original body was consumed by the previous attempt.
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			reqCopy.Body = body
		}
		log.Printf("API_REQUEST | method=%s path=%s attempt=%d", reqCopy.Method, reqCopy.URL.Path, attempt+1)

		start := time.Now()
		resp, err := c.httpClient.Do(reqCopy)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			continue
		}

		log.Printf("API_RESPONSE | status=%d duration=%v", resp.StatusCode, time.Since(start))
		if resp.StatusCode < 500 {
			return resp, nil
		}

		lastErr = fmt.Errorf("status %d", resp.StatusCode)
		resp.Body.Close()
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// readResponse reads a response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", int64(MaxResponseSize))
	}
	return body, nil
}

// calculateBackoff returns the delay before the given retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// rateLimitReset parses the x-ratelimit-reset header (unix seconds).
func rateLimitReset(h http.Header) time.Time {
	secs, err := strconv.ParseInt(h.Get("x-ratelimit-reset"), 10, 64)
	if err != nil {
		return time.Now().Add(time.Hour)
	}
	return time.Unix(secs, 0)
}

// isRateLimited reports whether a 403 response is a rate-limit rejection
// rather than a permission failure.
func isRateLimited(resp *http.Response) bool {
	return resp.StatusCode == http.StatusForbidden &&
		resp.Header.Get("x-ratelimit-remaining") == "0"
}
