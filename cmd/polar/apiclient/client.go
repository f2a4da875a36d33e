// Package apiclient is the small HTTP client shared by the polar commands
// that talk to a running API server.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/papercomputeco/polar/api"
)

const defaultTimeout = 30 * time.Second

// Client calls the polar API at a base URL.
type Client struct {
	target string
	http   *http.Client
}

// New creates a Client for the given API target (scheme + host + port).
func New(target string) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API target URL %q: scheme and host are required", target)
	}
	return &Client{
		target: target,
		http:   &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Error is a non-2xx answer from the API.
type Error struct {
	Status  int
	Kind    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Kind, e.Status)
}

// Kind returns the API error kind of err, or "" when err is not an API error.
func Kind(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Do sends a request to path, given in escaped form, with the given query
// and decodes a JSON answer into out. A nil out discards the body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, out any) error {
	u, err := url.Parse(c.target)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Path, err = url.PathUnescape(path); err != nil {
		return fmt.Errorf("invalid request path %q: %w", path, err)
	}
	u.RawPath = path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Polar API at %s: %w", c.target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er api.ErrorResponse
		if json.Unmarshal(body, &er) != nil || er.Error == "" {
			er = api.ErrorResponse{Error: api.KindInternal, Message: string(body)}
		}
		return &Error{Status: resp.StatusCode, Kind: er.Error, Message: er.Message}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Next requests the next feed item for user.
func (c *Client) Next(ctx context.Context, user string) (*api.FeedResponse, error) {
	var out api.FeedResponse
	if err := c.Do(ctx, http.MethodGet, "/v1/feed/next", url.Values{"user": {user}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset clears user's visited set.
func (c *Client) Reset(ctx context.Context, user string) error {
	return c.Do(ctx, http.MethodPost, "/v1/feed/reset", url.Values{"user": {user}}, nil)
}

// Similar requests the k items nearest to itemID.
func (c *Client) Similar(ctx context.Context, itemID string, k int) (*api.SearchResponse, error) {
	var out api.SearchResponse
	path := "/v1/similar/" + url.PathEscape(itemID)
	if err := c.Do(ctx, http.MethodGet, path, url.Values{"k": {fmt.Sprint(k)}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search embeds query on the server and returns the topK nearest items.
func (c *Client) Search(ctx context.Context, query string, topK int) (*api.SearchResponse, error) {
	var out api.SearchResponse
	if err := c.Do(ctx, http.MethodGet, "/v1/search", url.Values{"query": {query}, "top_k": {fmt.Sprint(topK)}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
