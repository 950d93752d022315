// Package blog is the HTTP client for the blog platform's private-message,
// friends and profile endpoints.
package blog

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
)

const (
	DefaultTimeout = 15 * time.Second

	// CodeOK is the envelope code of a successful response.
	CodeOK = 200
)

// APIError is a non-success response: a non-2xx HTTP status or an envelope
// code other than 200.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("blog api: status %d, code %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("blog api: status %d: %s", e.Status, e.Message)
}

// envelope is the {code, msg, data} wrapper every endpoint returns.
type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client talks to one blog server on behalf of one user.
type Client struct {
	baseURL    string
	userID     int64
	token      string
	httpClient *http.Client
	streamHTTP *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the client used for request/response calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithStreamClient replaces the client used for long-lived event streams.
// It must not carry an overall timeout.
func WithStreamClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.streamHTTP = hc }
}

// WithTimeout sets the timeout of request/response calls.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for baseURL (for example "http://host/api").
func NewClient(baseURL string, userID int64, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		streamHTTP: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserID returns the id of the user this client acts for.
func (c *Client) UserID() int64 { return c.userID }

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != 0 {
		req.Header.Set("X-User-Id", strconv.FormatInt(c.userID, 10))
	}
	return req, nil
}

// do performs a request and decodes the envelope's data into out when out is
// non-nil. An empty body or a body without a code field counts as success.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode/100 == 2 {
			return fmt.Errorf("%s %s: decode envelope: %w", method, path, err)
		}
	}

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Msg}
		if env.Code != nil {
			apiErr.Code = *env.Code
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if env.Code != nil && *env.Code != CodeOK {
		return &APIError{Status: resp.StatusCode, Code: *env.Code, Message: env.Msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
