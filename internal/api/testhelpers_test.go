package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sahajakrushi/krushi-cli/internal/cache"
	"github.com/sahajakrushi/krushi-cli/internal/core"
)

var testEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	server *FakeServer
	clock  *core.FakeClock
	client *CachingClient
	api    *KrushiAPI
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := core.NewFakeClock(testEpoch)
	server := NewFakeServer(clock)
	t.Cleanup(server.Close)

	store := cache.NewStore(cache.NewMemoryBackend(), core.CacheTTL, clock, zerolog.Nop())
	client := NewCachingClient(NewClient(server.URL(), "test-token", 2*time.Second, zerolog.Nop()), store, zerolog.Nop())
	return &testEnv{
		server: server,
		clock:  clock,
		client: client,
		api:    NewKrushiAPI(client, clock, zerolog.Nop()),
	}
}

// scriptedTransport answers requests from a function and counts calls.
type scriptedTransport struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, req *Request) (json.RawMessage, error)
}

func newScriptedTransport(fn func(ctx context.Context, req *Request) (json.RawMessage, error)) *scriptedTransport {
	return &scriptedTransport{calls: make(map[string]int), fn: fn}
}

func (s *scriptedTransport) Do(ctx context.Context, req *Request) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls[req.Method+" "+req.Endpoint]++
	s.mu.Unlock()
	return s.fn(ctx, req)
}

func (s *scriptedTransport) Calls(method, endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+endpoint]
}
