package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin HTTP client for the marketplace notification API.
// It handles Bearer token authentication and JSON (de)serialization.
// Every request is a single attempt; callers decide what a failure
// means (the feed store treats all of them as "no remote data").
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a notification API client. The baseURL should be
// the root URL of the marketplace backend.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchNotifications retrieves the authenticated user's notification
// feed.
func (c *Client) FetchNotifications(ctx context.Context, token string) (*FeedResponse, error) {
	var feed FeedResponse
	if err := c.do(ctx, http.MethodGet, "/api/notifications/", token, nil, &feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

// MarkRead marks a single remote notification as read.
func (c *Client) MarkRead(ctx context.Context, token, id string) error {
	path := fmt.Sprintf("/api/notifications/%s/read", url.PathEscape(id))
	return c.do(ctx, http.MethodPut, path, token, nil, nil)
}

// MarkAllRead marks every remote notification as read.
func (c *Client) MarkAllRead(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/mark-all-read", token, nil, nil)
}

// do is the core HTTP method that builds the request, handles auth,
// and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	token string,
	body interface{},
	result interface{},
) error {
	reqURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("reading response body: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf(
				"api error (%d) on %s %s: %s",
				resp.StatusCode, method, path, apiErr.Error,
			)
		}
		return fmt.Errorf(
			"unexpected status %d on %s %s: %s",
			resp.StatusCode, method, path, string(respBody),
		)
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf(
			"unmarshaling response from %s %s: %w", method, path, err,
		)
	}

	return nil
}
