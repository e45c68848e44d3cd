// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package server implements the HTTP server for gh-dir-diff: the OAuth
// redirect flow and the compare API consumed by the browser frontend.
//
// # Key Types
//
//   - Server: the HTTP server. Routes, middleware chain, graceful
//     shutdown.
//   - RateLimiter: per-client-IP token bucket backing the rate limit
//     middleware.
//   - CORSConfig: single-origin CORS settings.
//
// # Endpoints
//
//   - GET /login: set a signed state cookie and redirect to GitHub's
//     authorize page.
//   - GET /callback: verify the state, exchange the code, redirect to
//     the frontend with the access token in the URL fragment.
//   - GET /api/compare/{owner}/{repo}/{basehead...}: assembled unified
//     diff with summary counts, optionally filtered by a glob pattern.
//   - GET /gh-dir-diff/...: validate a shareable link and redirect it
//     to the frontend.
//   - GET /healthz: liveness plus request counters.
//
// # Usage
//
//	srv := server.New(cfg, ghClient, cacheStore, stateKey, version)
//	go srv.Start()
//	...
//	srv.Shutdown(ctx)
package server
