// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package glob compiles slash-segmented glob patterns into path predicates.
//
// Supported syntax:
//   - `*`  matches zero or more characters within a segment (never `/`)
//   - `?`  matches exactly one character within a segment (never `/`)
//   - `**` matches zero or more whole segments
//
// There is no escaping syntax: every other character matches itself,
// including characters that are special in regular expressions. An empty
// pattern matches every path.
package glob

import "strings"

// segmentKind discriminates the compiled form of one pattern segment.
type segmentKind int

const (
	// segLiteral is a plain segment, possibly containing `*` and `?`.
	segLiteral segmentKind = iota
	// segGlobstar is a `**` segment spanning zero or more whole segments.
	segGlobstar
)

// segment is one compiled element of a Matcher.
type segment struct {
	kind    segmentKind
	pattern string // original segment text, used by segLiteral only
}

// Matcher is a compiled glob pattern. The zero value matches every path.
type Matcher struct {
	segments []segment
	matchAll bool
}

// Compile parses a glob pattern into a Matcher. There are no error
// conditions: malformed-looking input is interpreted literally per the
// character rules, and an empty pattern matches everything.
func Compile(pattern string) Matcher {
	if pattern == "" {
		return Matcher{matchAll: true}
	}

	parts := strings.Split(pattern, "/")
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		if part == "**" {
			segments = append(segments, segment{kind: segGlobstar})
			continue
		}
		segments = append(segments, segment{kind: segLiteral, pattern: part})
	}
	return Matcher{segments: segments}
}

// Match reports whether the whole path matches the compiled pattern.
// The match is anchored: a pattern never matches a mere substring.
func (m Matcher) Match(path string) bool {
	if m.matchAll {
		return true
	}
	return matchSegments(m.segments, strings.Split(path, "/"))
}

// Match is a convenience for one-shot matching.
func Match(pattern, path string) bool {
	return Compile(pattern).Match(path)
}

// matchSegments matches pattern segments against path segments,
// backtracking over the spans a `**` may absorb.
func matchSegments(pats []segment, segs []string) bool {
	if len(pats) == 0 {
		return len(segs) == 0
	}

	head := pats[0]
	if head.kind == segGlobstar {
		// A trailing `**` consumes the remainder unconditionally,
		// including an empty remainder.
		if len(pats) == 1 {
			return true
		}
		// Otherwise try absorbing zero, one, two, ... whole segments.
		for skip := 0; skip <= len(segs); skip++ {
			if matchSegments(pats[1:], segs[skip:]) {
				return true
			}
		}
		return false
	}

	if len(segs) == 0 {
		return false
	}
	return matchSegment(head.pattern, segs[0]) && matchSegments(pats[1:], segs[1:])
}

// matchSegment matches a single literal segment pattern against one path
// segment. `*` and `?` never cross a separator because segments are
// split before this point. Rune-based so `?` consumes one character,
// not one byte.
func matchSegment(pattern, s string) bool {
	p := []rune(pattern)
	t := []rune(s)

	pi, ti := 0, 0
	starPi, starTi := -1, 0

	for ti < len(t) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == t[ti]) && p[pi] != '*':
			pi++
			ti++
		case pi < len(p) && p[pi] == '*':
			// Remember the star so we can widen its span on mismatch.
			starPi, starTi = pi, ti
			pi++
		case starPi >= 0:
			pi = starPi + 1
			starTi++
			ti = starTi
		default:
			return false
		}
	}

	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
