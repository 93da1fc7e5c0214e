// Package canvas is a thin client for the Canvas-style learning-management
// REST API: bearer-token auth, Link-header pagination, JSON-array pages.
// It returns raw records only; normalization happens downstream.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	appLog "studycal/internal/log"
)

// ErrUnauthorized means the token was rejected outright (401/403) on an
// endpoint the sync cannot proceed without.
var ErrUnauthorized = errors.New("canvas authentication failed")

// ErrNoAccess means the token lacks access to an optional endpoint
// (course files); callers skip the course instead of failing the run.
var ErrNoAccess = errors.New("canvas token lacks access")

// Client talks to one Canvas API root (base URL including the /api/v1
// prefix).
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a Client for the given API root and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Course is a raw course record.
type Course struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	CourseCode    string `json:"course_code"`
	WorkflowState string `json:"workflow_state"`
	Term          *Term  `json:"term"`
}

// Term is the enrollment term nested in a course record.
type Term struct {
	Name string `json:"name"`
}

// Assignment is a raw assignment record.
type Assignment struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DueAt       string `json:"due_at"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
}

// File is a raw course file record. Canvas spells the content type both
// with a hyphen and an underscore depending on the endpoint.
type File struct {
	ID           int64  `json:"id"`
	DisplayName  string `json:"display_name"`
	Filename     string `json:"filename"`
	ContentType1 string `json:"content-type"`
	ContentType2 string `json:"content_type"`
	Size         int64  `json:"size"`
	UpdatedAt    string `json:"updated_at"`
	URL          string `json:"url"`
}

// Name returns the display name, falling back to the raw filename.
func (f File) Name() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Filename
}

// ContentType returns whichever content-type spelling was populated.
func (f File) ContentType() string {
	if f.ContentType1 != "" {
		return f.ContentType1
	}
	return f.ContentType2
}

// ActiveCourses fetches the caller's active courses (with term included)
// and keeps only those in the "available" workflow state.
func (c *Client) ActiveCourses(ctx context.Context) ([]Course, error) {
	params := url.Values{}
	params.Set("enrollment_state", "active")
	params.Add("include[]", "term")
	params.Set("per_page", "100")

	courses, err := fetchPaginated[Course](ctx, c, c.baseURL+"/courses?"+params.Encode(), false)
	if err != nil {
		return nil, err
	}

	available := courses[:0]
	for _, course := range courses {
		if course.Name == "" || course.WorkflowState != "available" {
			continue
		}
		available = append(available, course)
	}
	return available, nil
}

// CourseAssignments fetches the upcoming assignments of one course.
func (c *Client) CourseAssignments(ctx context.Context, courseID int64) ([]Assignment, error) {
	params := url.Values{}
	params.Set("bucket", "upcoming")
	params.Set("per_page", "100")

	u := fmt.Sprintf("%s/courses/%d/assignments?%s", c.baseURL, courseID, params.Encode())
	return fetchPaginated[Assignment](ctx, c, u, false)
}

// CourseFiles fetches one course's files, newest first. Tokens commonly
// lack file access on some courses; that surfaces as ErrNoAccess.
func (c *Client) CourseFiles(ctx context.Context, courseID int64) ([]File, error) {
	params := url.Values{}
	params.Set("per_page", "100")
	params.Set("sort", "updated_at")
	params.Set("order", "desc")

	u := fmt.Sprintf("%s/courses/%d/files?%s", c.baseURL, courseID, params.Encode())
	return fetchPaginated[File](ctx, c, u, true)
}

// fetchPaginated follows rel="next" Link headers until the collection is
// exhausted. Every page must be a JSON array. With soft set, auth/404
// failures map to ErrNoAccess instead of ErrUnauthorized.
func fetchPaginated[T any](ctx context.Context, c *Client, first string, soft bool) ([]T, error) {
	collected := make([]T, 0)
	next := first

	for next != "" {
		body, linkHeader, err := c.get(ctx, next, soft)
		if err != nil {
			return nil, err
		}

		var page []T
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("expected a JSON list from %s: %w", redactURL(next), err)
		}
		collected = append(collected, page...)
		next = parseNextLink(linkHeader)
	}
	return collected, nil
}

func (c *Client) get(ctx context.Context, u string, soft bool) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("canvas request %s: %w", redactURL(u), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, "", readErr
		}
		return body, resp.Header.Get("Link"), nil

	case http.StatusUnauthorized, http.StatusForbidden:
		if soft {
			return nil, "", ErrNoAccess
		}
		return nil, "", ErrUnauthorized

	case http.StatusNotFound:
		if soft {
			return nil, "", ErrNoAccess
		}
		fallthrough

	default:
		appLog.Error("canvas request failed", errors.New(resp.Status),
			"url", redactURL(u), "status", resp.StatusCode)
		return nil, "", errors.New("canvas returned " + strconv.Itoa(resp.StatusCode) + " for " + redactURL(u))
	}
}

// parseNextLink extracts the rel="next" target from an RFC 5988 Link
// header, or "" when there is no next page.
func parseNextLink(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	for _, part := range strings.Split(linkHeader, ",") {
		section := strings.TrimSpace(part)
		if !strings.Contains(section, `rel="next"`) {
			continue
		}
		start := strings.Index(section, "<")
		if start == -1 {
			continue
		}
		end := strings.Index(section[start+1:], ">")
		if end == -1 {
			continue
		}
		return section[start+1 : start+1+end]
	}
	return ""
}

// redactURL hides query strings and deep paths when logging request URLs,
// since file URLs can embed verifier tokens.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "canvas://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
