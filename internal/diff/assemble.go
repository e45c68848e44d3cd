// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

package diff

import (
	"fmt"
	"strings"
)

// =============================================================================
// FILE CHANGE RECORD
// =============================================================================

// File status values reported by the compare endpoint.
const (
	StatusAdded    = "added"
	StatusRemoved  = "removed"
	StatusModified = "modified"
	StatusRenamed  = "renamed"
)

// DefaultFileMode is assumed when the compare record carries no mode.
const DefaultFileMode = "100644"

// FileChange mirrors one entry of the GitHub compare API files array.
// Patch is empty for binary files and for content-identical renames.
type FileChange struct {
	Filename         string `json:"filename"`
	PreviousFilename string `json:"previous_filename,omitempty"`
	Status           string `json:"status"`
	Patch            string `json:"patch,omitempty"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	Mode             string `json:"mode,omitempty"`
	PreviousMode     string `json:"previous_mode,omitempty"`
}

// =============================================================================
// RESULT
// =============================================================================

// Result is an assembled unified-diff document with summary counts.
// Files, Additions and Deletions cover every record that passed the
// filter, including binary files whose patch body was omitted, so the
// totals agree with the counts the upstream API reports.
type Result struct {
	Diff      string `json:"diff"`
	Files     int    `json:"fileCount"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Summary returns a short human-readable description of the result.
func (r Result) Summary() string {
	if r.Files == 0 {
		return "no matching files"
	}
	return fmt.Sprintf("%d files +%d -%d", r.Files, r.Additions, r.Deletions)
}

// =============================================================================
// ASSEMBLY
// =============================================================================

// Assemble filters files by match and concatenates one unified-diff
// section per surviving record, in the original order. A nil match
// keeps every file. Never fails: an empty filtered set yields a zero
// Result, and missing modes fall back to DefaultFileMode.
func Assemble(files []FileChange, match func(string) bool) Result {
	var res Result
	var sb strings.Builder

	for _, f := range files {
		if match != nil && !match(f.Filename) {
			continue
		}
		res.Files++
		res.Additions += f.Additions
		res.Deletions += f.Deletions

		// A record with no patch body and no add/remove/rename marker
		// is a binary or content-identical file: a section for it would
		// have a header and nothing else, so it is left out entirely.
		if f.Patch == "" && f.Status != StatusAdded && f.Status != StatusRemoved && f.Status != StatusRenamed {
			continue
		}

		writeSection(&sb, f)
	}

	res.Diff = sb.String()
	return res
}

// writeSection emits the `diff --git` header block and patch body for a
// single file. The header shape depends on the file status; see
// git-diff(1) "GENERATING PATCH TEXT WITH -P" for the reference forms.
func writeSection(sb *strings.Builder, f FileChange) {
	switch f.Status {
	case StatusRemoved:
		fmt.Fprintf(sb, "diff --git a/%s a/%s\n", f.Filename, f.Filename)
		fmt.Fprintf(sb, "deleted file mode %s\n", modeOrDefault(f.PreviousMode))
		fmt.Fprintf(sb, "--- a/%s\n", f.Filename)
		sb.WriteString("+++ /dev/null\n")

	case StatusAdded:
		fmt.Fprintf(sb, "diff --git b/%s b/%s\n", f.Filename, f.Filename)
		fmt.Fprintf(sb, "new file mode %s\n", modeOrDefault(f.Mode))
		sb.WriteString("--- /dev/null\n")
		fmt.Fprintf(sb, "+++ b/%s\n", f.Filename)

	case StatusRenamed:
		fmt.Fprintf(sb, "diff --git a/%s b/%s\n", f.PreviousFilename, f.Filename)
		fmt.Fprintf(sb, "rename from %s\n", f.PreviousFilename)
		fmt.Fprintf(sb, "rename to %s\n", f.Filename)
		// A pure rename has no hunks; `---`/`+++` lines with no body
		// would make the section malformed.
		if f.Patch != "" {
			fmt.Fprintf(sb, "--- a/%s\n", f.PreviousFilename)
			fmt.Fprintf(sb, "+++ b/%s\n", f.Filename)
		}

	default:
		// Modified, plus any status this code does not know about.
		fmt.Fprintf(sb, "diff --git a/%s b/%s\n", f.Filename, f.Filename)
		fmt.Fprintf(sb, "--- a/%s\n", f.Filename)
		fmt.Fprintf(sb, "+++ b/%s\n", f.Filename)
	}

	if f.Patch != "" {
		sb.WriteString(f.Patch)
		sb.WriteString("\n")
	}
}

// modeOrDefault substitutes the standard non-executable file mode when
// the compare record omitted one.
func modeOrDefault(mode string) string {
	if mode == "" {
		return DefaultFileMode
	}
	return mode
}
