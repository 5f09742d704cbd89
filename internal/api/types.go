// Package api provides the caching HTTP access layer for the advisory
// service and its typed endpoints.
package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Envelope is the response wrapper used by every endpoint.
type Envelope[T any] struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
}

// Request is one HTTP exchange with the service.
type Request struct {
	Method      string
	Endpoint    string // path below /api/V1, including any query string
	Body        []byte
	ContentType string
	Timeout     time.Duration
}

// Transport is the interface for making API requests. It returns the raw
// response body of a successful exchange.
type Transport interface {
	Do(ctx context.Context, req *Request) (json.RawMessage, error)
}

// Identifier is implemented by transports whose responses depend on who is
// asking and where. Cache keys include the identity so entries from one
// server or account are never served to another.
type Identifier interface {
	Identity() []byte
}

// RequestOption adjusts a single call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout  time.Duration
	useCache bool
}

func defaultOptions() requestOptions {
	return requestOptions{useCache: true}
}

// WithTimeout overrides the transport's default deadline for this call.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// WithoutCache makes a GET skip the cache for both reading and storing.
func WithoutCache() RequestOption {
	return func(o *requestOptions) { o.useCache = false }
}

// ResourceRoot returns the collection a path belongs to, for example
// "/crop-reports" for "/crop-reports/stages/3/photos".
func ResourceRoot(endpoint string) string {
	path := strings.SplitN(endpoint, "?", 2)[0]
	path = strings.TrimLeft(path, "/")
	first := strings.SplitN(path, "/", 2)[0]
	return "/" + first
}
