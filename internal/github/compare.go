// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kleewho/gh-dir-diff/internal/diff"
)

const (
	// comparePerPage is the file page size for compare requests.
	// 300 is the maximum GitHub accepts.
	comparePerPage = 300

	// compareMaxPages caps pagination so a misbehaving server cannot
	// keep the client looping.
	compareMaxPages = 100
)

// compareResponse is the subset of the compare payload we decode.
type compareResponse struct {
	Files []diff.FileChange `json:"files"`
}

// Compare fetches the file-level comparison of two refs via
// GET /repos/{owner}/{repo}/compare/{base}...{head}, following file
// pages until the compare is complete. An empty token issues
// unauthenticated requests.
func (c *Client) Compare(ctx context.Context, token, owner, repo, base, head string) ([]diff.FileChange, error) {
	files, _, _, err := c.CompareConditional(ctx, token, owner, repo, base, head, "")
	return files, err
}

// CompareConditional is Compare with ETag revalidation. When etag is
// non-empty it is sent as If-None-Match on the first page; a 304 answer
// returns notModified=true with no files and costs no rate-limit
// credit. Otherwise the fresh file list and the new ETag are returned.
func (c *Client) CompareConditional(ctx context.Context, token, owner, repo, base, head, etag string) (files []diff.FileChange, newETag string, notModified bool, err error) {
	basehead := base + "..." + head

	for page := 1; page <= compareMaxPages; page++ {
		ifNoneMatch := ""
		if page == 1 {
			ifNoneMatch = etag
		}
		pageFiles, pageETag, unchanged, err := c.comparePage(ctx, token, owner, repo, basehead, page, ifNoneMatch)
		if err != nil {
			return nil, "", false, err
		}
		if unchanged {
			return nil, etag, true, nil
		}
		if page == 1 {
			newETag = pageETag
		}
		files = append(files, pageFiles...)
		if len(pageFiles) < comparePerPage {
			return files, newETag, false, nil
		}
	}
	return nil, "", false, fmt.Errorf("compare %s/%s %s: exceeded %d file pages", owner, repo, basehead, compareMaxPages)
}

// comparePage fetches one page of the compare and maps error responses
// onto the package error taxonomy.
func (c *Client) comparePage(ctx context.Context, token, owner, repo, basehead string, page int, ifNoneMatch string) ([]diff.FileChange, string, bool, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/compare/%s?per_page=%d&page=%d",
		c.apiBaseURL,
		url.PathEscape(owner),
		url.PathEscape(repo),
		url.PathEscape(basehead),
		comparePerPage,
		page,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", "gh-dir-diff")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, ifNoneMatch, true, nil
	}

	body, err := readResponse(resp)
	if err != nil {
		return nil, "", false, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", false, compareError(resp, body, basehead)
	}

	var cr compareResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, "", false, fmt.Errorf("failed to parse compare response: %w", err)
	}
	return cr.Files, resp.Header.Get("ETag"), false, nil
}

// compareError maps a non-200 compare response to a taxonomy error.
func compareError(resp *http.Response, body []byte, basehead string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownRef, basehead)
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrAuthFailed
	case isRateLimited(resp):
		return &RateLimitError{Reset: rateLimitReset(resp.Header)}
	}

	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)
	return &APIError{Status: resp.StatusCode, Message: apiErr.Message}
}
