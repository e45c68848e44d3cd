// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

package session

import (
	"net/http"
	"strings"
	"sync"
)

// =============================================================================
// STATE
// =============================================================================

// State is the position of a session in its lifecycle.
type State int

const (
	// Anonymous means no access token is held.
	Anonymous State = iota
	// Authenticated means an access token is held.
	Authenticated
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Session holds the access token of a caller. The zero value is an
// anonymous session ready for use. All methods are safe for concurrent
// use.
type Session struct {
	mu    sync.RWMutex
	token string
}

// New returns an anonymous session.
func New() *Session {
	return &Session{}
}

// Login transitions the session to Authenticated with the given token.
// An empty token leaves the session anonymous.
func (s *Session) Login(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Logout discards the token and returns the session to Anonymous.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Token returns the held token and whether the session is authenticated.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return Anonymous
	}
	return Authenticated
}

// =============================================================================
// REQUEST DERIVATION
// =============================================================================

// FromRequest derives a session from the Authorization header of an
// incoming request. A missing or non-Bearer header yields an anonymous
// session.
func FromRequest(r *http.Request) *Session {
	return FromHeader(r.Header.Get("Authorization"))
}

// FromHeader derives a session from an Authorization header value.
func FromHeader(authz string) *Session {
	s := New()
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return s
	}
	if token = strings.TrimSpace(token); token != "" {
		s.Login(token)
	}
	return s
}
