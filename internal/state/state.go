// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package state issues and verifies the signed CSRF state tokens used
// by the OAuth redirect exchange.
//
// A token is an opaque state value (creation timestamp plus random
// suffix) joined with a hex-encoded HMAC-SHA256 signature. Verification
// is stateless: a token is accepted only when the signature matches a
// fresh computation with the same key and the embedded timestamp is
// within the freshness window. All failure modes collapse to a single
// invalid result so callers can not distinguish forgery from expiry.
package state

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TTL is the freshness window for a signed state token.
const TTL = 10 * time.Minute

// delimiter separates the state value from its signature. It cannot
// occur inside the state value (unix seconds, colon, UUID).
const delimiter = "."

// tsSeparator separates the timestamp from the random suffix inside
// the state value.
const tsSeparator = ":"

// New builds a fresh opaque state value: the creation time in unix
// seconds, a separator, and a random suffix.
func New(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10) + tsSeparator + uuid.NewString()
}

// Sign computes the keyed signature over state and returns the signed
// token. Deterministic: identical inputs always yield the same token.
func Sign(state string, key []byte) string {
	return state + delimiter + signature(state, key)
}

// Verify checks a signed token against key at time now. On success it
// returns the embedded state value and true. Malformed input, signature
// mismatch and expiry all return ("", false); no error detail leaks.
func Verify(signed string, key []byte, now time.Time) (string, bool) {
	st, sig, ok := strings.Cut(signed, delimiter)
	if !ok {
		return "", false
	}

	// hmac.Equal does not early-exit on the first differing byte.
	if !hmac.Equal([]byte(sig), []byte(signature(st, key))) {
		return "", false
	}

	tsPart, _, ok := strings.Cut(st, tsSeparator)
	if !ok {
		return "", false
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return "", false
	}
	if now.Sub(time.Unix(ts, 0)) > TTL {
		return "", false
	}

	return st, true
}

// signature returns the hex-encoded HMAC-SHA256 of state under key.
func signature(state string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(state))
	return hex.EncodeToString(mac.Sum(nil))
}
