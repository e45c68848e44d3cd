// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package session models the authenticated state of a caller.
//
// A Session replaces a process-global access token with an explicit
// value that moves through defined transitions:
//
//	Anonymous -> Authenticated -> Anonymous
//
// # Key Types
//
//   - Session: concurrency-safe holder for a GitHub access token
//   - State: Anonymous or Authenticated
//
// # Usage
//
// Create a session and log in once a token is acquired:
//
//	s := session.New()
//	s.Login(token)
//
// Read the token when issuing authenticated requests:
//
//	if token, ok := s.Token(); ok {
//	    req.Header.Set("Authorization", "Bearer "+token)
//	}
//
// Derive a per-request session from an Authorization header:
//
//	s := session.FromRequest(r)
package session
