// Package history queries the backend's log history endpoint.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atikulmunna/logterm/internal/model"
	"github.com/atikulmunna/logterm/internal/parser"
)

const (
	// Path is where the backend serves stored log records.
	Path = "/api/logs"
	// DefaultTimeout matches the dashboard's request timeout.
	DefaultTimeout = 10 * time.Second
)

// Query narrows a history request. Zero values are omitted.
type Query struct {
	Limit  int
	Skip   int
	Level  string
	Module string
	Start  time.Time
	End    time.Time
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Level != "" {
		v.Set("level", strings.ToUpper(q.Level))
	}
	if q.Module != "" {
		v.Set("module", q.Module)
	}
	if !q.Start.IsZero() {
		v.Set("start_time", q.Start.Format(time.RFC3339))
	}
	if !q.End.IsZero() {
		v.Set("end_time", q.End.Format(time.RFC3339))
	}
	return v
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("history endpoint returned %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("history endpoint returned %d", e.Code)
}

// Client fetches log records over HTTP.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the backend at apiBase, e.g. http://localhost:8000.
func New(apiBase string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(apiBase, "/"),
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the records matching q in server order (newest first).
func (c *Client) Fetch(ctx context.Context, q Query) ([]model.LogEntry, error) {
	u := c.base + Path
	if enc := q.values().Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read history body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Detail: detail(body)}
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode history body: %w", err)
	}

	now := time.Now()
	entries := make([]model.LogEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, parser.Entry(rec, now))
	}
	return entries, nil
}

// detail extracts the backend's {"detail": "..."} error message, if any.
func detail(body []byte) string {
	var e struct {
		Detail interface{} `json:"detail"`
	}
	if json.Unmarshal(body, &e) != nil || e.Detail == nil {
		return ""
	}
	if s, ok := e.Detail.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", e.Detail)
}
