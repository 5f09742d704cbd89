// Package cache provides the TTL response cache behind the API client.
//
// # Overview
//
// Successful GET responses are stored as raw JSON bodies keyed by request
// method, endpoint and a digest of the request options. An entry is served
// only while it is younger than the store TTL (five minutes by default);
// an older entry is dropped on read and the caller goes back to the network.
//
// # Invalidation
//
// Mutations never populate the cache. After every mutation, failed or not, the API
// layer calls Store.InvalidatePrefix with the mutated resource collection
// (for example "/crop-reports"), which removes every entry whose endpoint
// lies under that path and advances the store generation. A fetch that was
// started before the invalidation carries the old generation and is not
// written back, so a read that follows a write always observes the write.
//
// # Backends
//
// MemoryBackend keeps entries in a map and is used by tests and the MCP
// server. FilesystemBackend keeps one JSON file per entry under
// ~/.krushi/cache so the cache survives between CLI invocations.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Entry is one cached response body.
//
// Fields:
//   - Key: method + endpoint + option digest (see Key)
//   - Endpoint: the request path, used for prefix invalidation
//   - Value: the raw response body
//   - StoredAt: when the body was received; freshness is measured from here
type Entry struct {
	Key      string          `json:"key"`
	Endpoint string          `json:"endpoint"`
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

// Fresh reports whether the entry may still be served at now.
func (e *Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) < ttl
}

// clone returns a deep copy so callers cannot mutate stored bytes.
func (e *Entry) clone() *Entry {
	c := *e
	c.Value = append(json.RawMessage(nil), e.Value...)
	return &c
}

// Backend is the interface for cache storage backends.
type Backend interface {
	// Read returns the entry for key or nil if absent.
	Read(key string) *Entry

	// Write stores the entry, replacing any entry with the same key.
	Write(entry *Entry) error

	// DeleteWhere removes every entry for which match returns true and
	// reports how many were removed.
	DeleteWhere(match func(*Entry) bool) (int, error)

	// Clear removes all entries.
	Clear() error

	// Len returns the number of stored entries, fresh or not.
	Len() int
}

// Key derives the cache key for a request. Identical method, endpoint and
// options always produce the same key.
func Key(method, endpoint string, options []byte) string {
	k := strings.ToUpper(method) + " " + endpoint
	if len(options) == 0 {
		return k
	}
	sum := sha256.Sum256(options)
	return k + "#" + hex.EncodeToString(sum[:8])
}

// UnderPath reports whether endpoint is prefix itself or a sub-resource or
// query of it. "/crop-reports" covers "/crop-reports/7" and
// "/crop-reports?x=1" but not "/crop-reports-archive".
func UnderPath(endpoint, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(endpoint, prefix) {
		return false
	}
	rest := endpoint[len(prefix):]
	return rest == "" || rest[0] == '/' || rest[0] == '?'
}
