// Package notifications provides a Go client for the notifications API
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the notifications API client. Publishers authenticate with an
// API key, receivers with a bearer token.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client

	lastRateLimit *RateLimitInfo
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey authenticates event publishing
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithToken authenticates receiver calls
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new notifications client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RateLimit returns the rate limit headers of the last receiver call, if any
func (c *Client) RateLimit() *RateLimitInfo {
	return c.lastRateLimit
}

// Publish sends a domain event. The returned id is assigned by the server.
func (c *Client) Publish(ctx context.Context, event *Event) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", event, &resp, http.StatusAccepted); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// List returns a page of the caller's notifications, newest first
func (c *Client) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	query := url.Values{}
	if opts.UnreadOnly {
		query.Set("unreadOnly", "true")
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/notifications"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var result ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// UnreadCount returns the number of unseen notifications
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var result struct {
		UnreadCount int `json:"unreadCount"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications/unread-count", nil, &result, http.StatusOK); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}

// MarkDelivered marks the given notifications as delivered
func (c *Client) MarkDelivered(ctx context.Context, ids []int64) (int64, error) {
	return c.mark(ctx, "/api/v1/notifications/mark-delivered", ids)
}

// MarkSeen marks the given notifications as seen. With no ids every
// notification of the caller is marked.
func (c *Client) MarkSeen(ctx context.Context, ids []int64) (int64, error) {
	return c.mark(ctx, "/api/v1/notifications/mark-seen", ids)
}

func (c *Client) mark(ctx context.Context, path string, ids []int64) (int64, error) {
	body := map[string][]int64{"notificationIds": ids}
	var result struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &result, http.StatusOK); err != nil {
		return 0, err
	}
	return result.Updated, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, wantStatus int) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.recordRateLimit(resp.Header)

	if resp.StatusCode != wantStatus {
		apiErr := &Error{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) recordRateLimit(h http.Header) {
	limit, err := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	if err != nil {
		return
	}
	used, _ := strconv.Atoi(h.Get("X-RateLimit-Used"))
	info := &RateLimitInfo{Limit: limit, Used: used}
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil {
		info.RetryAfter = time.Duration(secs) * time.Second
	}
	c.lastRateLimit = info
}

// Stream is a live connection delivering push messages
type Stream struct {
	conn *websocket.Conn
}

// Stream opens the real-time notification stream. The first message carries
// the current unread count.
func (c *Client) Stream(ctx context.Context) (*Stream, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/notifications/stream")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &Error{StatusCode: resp.StatusCode, Message: "stream handshake failed"}
		}
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next push message arrives
func (s *Stream) Next() (*PushMessage, error) {
	var msg PushMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Close closes the stream
func (s *Stream) Close() error {
	return s.conn.Close()
}
