package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"
	maxBodySize     = 1 << 20
)

// Authenticator signs outgoing requests and reacts to a rejected credential.
// Invalidate is called exactly once for every 401 response, with the request
// that was rejected.
type Authenticator interface {
	Sign(req *http.Request)
	Invalidate(req *http.Request)
}

// Client talks JSON to the subscription API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       Authenticator
	logger     *slog.Logger
	timeout    time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default client, including its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New returns an unauthenticated client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default(),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   c.timeout,
			Transport: NewTransport(http.DefaultTransport, c.logger),
		}
	}
	return c
}

// WithAuth returns a copy of c that signs every request with a and reports
// 401 responses to it.
func (c *Client) WithAuth(a Authenticator) *Client {
	cp := *c
	cp.auth = a
	return &cp
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends in (if non-nil) as JSON and decodes a successful response into
// out (if non-nil). The backend may wrap payloads in
// {"message", "data", "status", "timestamp"}; the data member is unwrapped.
// An empty success body leaves out untouched.
//
// Failures are returned as *Error.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	if c.auth != nil {
		c.auth.Sign(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: ErrTransient, Err: fmt.Errorf("%s %s: %w", method, path, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &Error{Kind: ErrTransient, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := classify(resp.StatusCode, errorMessage(data))
		if resp.StatusCode == http.StatusUnauthorized && c.auth != nil {
			c.logger.Warn("credential rejected, invalidating session", "method", method, "path", path)
			c.auth.Invalidate(req)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapEnvelope(data), out); err != nil {
		return &Error{Kind: ErrTransient, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func unwrapEnvelope(data []byte) []byte {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return data
	}
	if inner, ok := probe["data"]; ok {
		return inner
	}
	return data
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func errorMessage(data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}
