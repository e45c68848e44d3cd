// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package shareurl maps compare-form state to shareable path-based URLs
// and back.
//
// The URL shape is
//
//	/gh-dir-diff/<owner>/<repo>/<base>..<head>?filter=<glob>
//
// Base refs may contain `/`, so parsing rejoins every path segment
// after the repo before splitting base from head on the first `..`.
// Owner, repo and head round-trip losslessly.
package shareurl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Prefix is the leading path segment identifying a shareable URL.
const Prefix = "gh-dir-diff"

// ErrInvalid is returned for paths that do not encode a compare form.
var ErrInvalid = errors.New("not a shareable compare URL")

// Params is the compare-form state carried by a shareable URL.
type Params struct {
	Repo   string // "owner/name"
	Base   string
	Head   string
	Filter string
}

// Encode serializes p into a path (with query when a filter is set).
func Encode(p Params) string {
	var sb strings.Builder
	sb.WriteString("/")
	sb.WriteString(Prefix)
	sb.WriteString("/")
	sb.WriteString(p.Repo)
	sb.WriteString("/")
	sb.WriteString(p.Base)
	sb.WriteString("..")
	sb.WriteString(p.Head)
	if p.Filter != "" {
		sb.WriteString("?filter=")
		sb.WriteString(escapeFilter(p.Filter))
	}
	return sb.String()
}

// Parse reconstructs Params from a URL path and raw query string.
func Parse(path, rawQuery string) (Params, error) {
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) < 4 || segs[0] != Prefix {
		return Params{}, ErrInvalid
	}

	owner, repo := segs[1], segs[2]
	if owner == "" || repo == "" {
		return Params{}, ErrInvalid
	}

	// Everything after the repo belongs to "<base>..<head>"; base refs
	// may themselves contain separators.
	rest := strings.Join(segs[3:], "/")
	base, head, ok := strings.Cut(rest, "..")
	if !ok || base == "" || head == "" {
		return Params{}, fmt.Errorf("%w: missing base..head in %q", ErrInvalid, rest)
	}

	p := Params{
		Repo: owner + "/" + repo,
		Base: base,
		Head: head,
	}

	if rawQuery != "" {
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return Params{}, fmt.Errorf("%w: bad query: %v", ErrInvalid, err)
		}
		p.Filter = q.Get("filter")
	}

	return p, nil
}

// escapeFilter query-escapes a glob but keeps `*` readable, matching
// the escaping browsers produce for these links.
func escapeFilter(filter string) string {
	return strings.ReplaceAll(url.QueryEscape(filter), "%2A", "*")
}
