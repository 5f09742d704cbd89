package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sahajakrushi/krushi-cli/internal/cache"
	"github.com/sahajakrushi/krushi-cli/internal/core"
)

// CachingClient serves GETs from the cache store, coalesces concurrent
// identical GETs into one network call, and invalidates the cache after
// every mutation.
type CachingClient struct {
	transport Transport
	store     *cache.Store
	scope     []byte
	group     singleflight.Group
	log       zerolog.Logger
}

// NewCachingClient wraps transport with store.
func NewCachingClient(transport Transport, store *cache.Store, logger zerolog.Logger) *CachingClient {
	c := &CachingClient{
		transport: transport,
		store:     store,
		log:       core.ComponentLogger(logger, "access"),
	}
	if id, ok := transport.(Identifier); ok {
		c.scope = id.Identity()
	}
	return c
}

// Fetch performs a GET for endpoint, consulting the cache first.
//
// A fresh cache hit returns without a network call. On a miss, callers that
// ask for the same key at the same time share a single request. The
// response is cached only if no mutation invalidated the cache while it was
// in flight.
func (c *CachingClient) Fetch(ctx context.Context, endpoint string, opts ...RequestOption) (json.RawMessage, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	req := &Request{Method: http.MethodGet, Endpoint: endpoint, Timeout: o.timeout}
	if !o.useCache {
		return c.transport.Do(ctx, req)
	}

	key := cache.Key(http.MethodGet, endpoint, c.scope)
	gen := c.store.Generation()
	if value, ok := c.store.Get(key); ok {
		return value, nil
	}

	// Keying the flight by generation keeps callers that arrive after a
	// write from joining a fetch that started before it.
	flightKey := strconv.FormatUint(gen, 10) + "|" + key
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		data, err := c.transport.Do(context.WithoutCancel(ctx), req)
		if err != nil {
			return nil, err
		}
		if _, err := c.store.SetIfCurrent(key, endpoint, data, gen); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("failed to write cache entry")
		}
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.log.Debug().Str("key", key).Msg("joined in-flight request")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("GET %s: %w", endpoint, ctx.Err())
	}
}

// Mutate performs a POST, PUT or DELETE. The response is never cached.
// Once the request has been sent, every cached GET under the endpoint's
// resource collection is invalidated, whether or not it succeeded, since a
// timed-out write may still have been applied.
func (c *CachingClient) Mutate(ctx context.Context, method, endpoint string, body []byte, contentType string, opts ...RequestOption) (json.RawMessage, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	data, err := c.transport.Do(ctx, &Request{
		Method:      method,
		Endpoint:    endpoint,
		Body:        body,
		ContentType: contentType,
		Timeout:     o.timeout,
	})

	root := ResourceRoot(endpoint)
	if _, invErr := c.store.InvalidatePrefix(root); invErr != nil {
		c.log.Warn().Err(invErr).Str("prefix", root).Msg("cache invalidation failed")
	}
	return data, err
}

// ClearCache drops every cached response.
func (c *CachingClient) ClearCache() error {
	return c.store.Clear()
}

// Store returns the underlying cache store.
func (c *CachingClient) Store() *cache.Store {
	return c.store
}

// Get fetches endpoint and decodes the envelope's data into T.
func Get[T any](ctx context.Context, c *CachingClient, endpoint string, opts ...RequestOption) (T, error) {
	data, err := c.Fetch(ctx, endpoint, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeData[T](data)
}

// Post sends body as JSON and decodes the envelope's data into T.
func Post[T any](ctx context.Context, c *CachingClient, endpoint string, body any, opts ...RequestOption) (T, error) {
	return send[T](ctx, c, http.MethodPost, endpoint, body, opts...)
}

// Put sends body as JSON and decodes the envelope's data into T.
func Put[T any](ctx context.Context, c *CachingClient, endpoint string, body any, opts ...RequestOption) (T, error) {
	return send[T](ctx, c, http.MethodPut, endpoint, body, opts...)
}

// Delete issues a DELETE and decodes the envelope's data into T.
func Delete[T any](ctx context.Context, c *CachingClient, endpoint string, opts ...RequestOption) (T, error) {
	return send[T](ctx, c, http.MethodDelete, endpoint, nil, opts...)
}

func send[T any](ctx context.Context, c *CachingClient, method, endpoint string, body any, opts ...RequestOption) (T, error) {
	var zero T
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = encoded
	}

	data, err := c.Mutate(ctx, method, endpoint, payload, "application/json", opts...)
	if err != nil {
		return zero, err
	}
	return decodeData[T](data)
}

func decodeData[T any](data json.RawMessage) (T, error) {
	var env Envelope[T]
	if len(data) == 0 {
		return env.Data, nil
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env.Data, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return env.Data, nil
}
