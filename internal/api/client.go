package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sahajakrushi/krushi-cli/internal/core"
)

// Client is the HTTP wrapper around the advisory REST API.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new API client for baseURL (without the /api/V1
// suffix). A zero timeout uses core.DefaultTimeout.
func NewClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = core.DefaultTimeout
	}
	return &Client{
		baseURL:    core.NormalizeBaseURL(baseURL) + core.APIPath,
		token:      token,
		timeout:    timeout,
		httpClient: &http.Client{},
		log:        core.ComponentLogger(logger, "api"),
	}
}

// Do performs one request under its deadline and returns the raw body.
// It never retries; see IsRetryable for caller-side policy.
func (c *Client) Do(ctx context.Context, r *Request) (json.RawMessage, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	urlStr := c.baseURL + r.Endpoint
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if r.Body != nil {
		contentType := r.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.Debug().Str("method", r.Method).Str("url", urlStr).Str("request_id", requestID).Msg("request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, r, timeout, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, r, timeout, err)
	}

	c.log.Debug().
		Str("method", r.Method).
		Str("endpoint", r.Endpoint).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Msg("response")

	if err := checkResponse(resp.StatusCode, data); err != nil {
		return nil, err
	}
	return data, nil
}

// classify maps a transport failure onto TimeoutError or NetworkError.
func (c *Client) classify(ctx context.Context, r *Request, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.log.Warn().Str("method", r.Method).Str("endpoint", r.Endpoint).Dur("timeout", timeout).Msg("request timed out")
		return &TimeoutError{Method: r.Method, Endpoint: r.Endpoint, After: timeout}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", r.Method, r.Endpoint, context.Canceled)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Method: r.Method, Endpoint: r.Endpoint, After: timeout}
	}
	return &NetworkError{Method: r.Method, Endpoint: r.Endpoint, Err: err}
}

// checkResponse rejects non-2xx statuses and envelopes with success=false.
func checkResponse(status int, data []byte) error {
	var env Envelope[json.RawMessage]
	parsed := json.Unmarshal(data, &env) == nil

	if status < 200 || status >= 300 {
		httpErr := &HTTPError{Status: status, Body: strings.TrimSpace(string(data))}
		if parsed {
			httpErr.Message = env.Message
		}
		return httpErr
	}
	if parsed && env.Success != nil && !*env.Success {
		return &HTTPError{Status: status, Message: env.Message, Body: strings.TrimSpace(string(data))}
	}
	return nil
}

// Identity distinguishes cached responses by server and credentials. The
// token is only ever hashed into cache keys, never stored.
func (c *Client) Identity() []byte {
	return []byte(c.baseURL + "\x00" + c.token)
}

// BaseURL returns the full API base including /api/V1.
func (c *Client) BaseURL() string {
	return c.baseURL
}
