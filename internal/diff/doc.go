// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

// Package diff assembles unified-diff documents from per-file compare
// records.
//
// GitHub's compare endpoint returns one record per changed file with a
// pre-computed patch body but no surrounding `diff --git` headers. This
// package reconstructs a syntactically valid unified diff from those
// records so standard rendering tooling can consume the result as one
// document.
//
// # Key Types
//
//   - FileChange: one entry of the compare response's files array
//   - Result: assembled diff text plus summary counts
//
// # Usage
//
//	m := glob.Compile("**/*.go")
//	res := diff.Assemble(files, m.Match)
//	fmt.Println(res.Diff)
package diff
