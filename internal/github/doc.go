// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package github is the client for the GitHub REST and OAuth APIs.
//
// The client fetches ref comparisons (paginating over file pages so
// large compares arrive complete) and exchanges OAuth authorization
// codes for access tokens. Transient server errors are retried with
// exponential backoff; responses are size-limited.
//
// # Key Types
//
//   - Client: GitHub API client with retry and pagination
//   - RateLimitError: 403 with an exhausted rate limit, carries reset time
//
// # Errors
//
// Compare maps GitHub failures onto a small taxonomy callers can match
// with errors.Is / errors.As:
//
//   - ErrUnknownRef: the base or head ref does not exist (404)
//   - ErrAuthFailed: the token was rejected (401)
//   - *RateLimitError: the API rate limit is exhausted (403)
//
// # Usage
//
//	c := github.NewClient(clientID, clientSecret)
//	files, err := c.Compare(ctx, token, "golang", "go", "go1.23.0", "master")
package github
