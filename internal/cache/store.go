package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sahajakrushi/krushi-cli/internal/core"
)

// Store applies TTL freshness and invalidation on top of a Backend.
//
// A Store is constructed once by the application root and shared by every
// API call of the process. It is safe for concurrent use.
type Store struct {
	backend Backend
	ttl     time.Duration
	clock   core.Clock
	log     zerolog.Logger

	// generation advances on every invalidation; writes tagged with an
	// older generation are discarded.
	mu         sync.Mutex
	generation uint64
}

// NewStore creates a store over backend. A nil backend uses memory, a nil
// clock uses the system clock and a non-positive ttl uses core.CacheTTL.
func NewStore(backend Backend, ttl time.Duration, clock core.Clock, logger zerolog.Logger) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if clock == nil {
		clock = core.NewSystemClock()
	}
	if ttl <= 0 {
		ttl = core.CacheTTL
	}
	return &Store{
		backend: backend,
		ttl:     ttl,
		clock:   clock,
		log:     core.ComponentLogger(logger, "cache"),
	}
}

// Get returns the cached body for key if it is still fresh. A stale entry
// is removed and reported as a miss.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	entry := s.backend.Read(key)
	if entry == nil {
		s.log.Debug().Str("key", key).Msg("cache miss")
		return nil, false
	}

	now := s.clock.Now()
	if !entry.Fresh(now, s.ttl) {
		s.log.Debug().Str("key", key).Dur("age", now.Sub(entry.StoredAt)).Msg("cache entry expired")
		if _, err := s.backend.DeleteWhere(func(e *Entry) bool { return e.Key == key }); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to drop expired entry")
		}
		return nil, false
	}

	s.log.Debug().Str("key", key).Msg("cache hit")
	return entry.Value, true
}

// Generation returns the current invalidation generation. Capture it before
// starting a fetch and pass it to SetIfCurrent when the fetch completes.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Set stores value unconditionally, ignoring the generation (for testing).
func (s *Store) Set(key, endpoint string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(key, endpoint, value)
}

// SetIfCurrent stores value only if no invalidation happened since gen was
// captured. It reports whether the value was stored.
func (s *Store) SetIfCurrent(key, endpoint string, value json.RawMessage, gen uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.log.Debug().Str("key", key).Msg("discarding response fetched before invalidation")
		return false, nil
	}
	return true, s.write(key, endpoint, value)
}

func (s *Store) write(key, endpoint string, value json.RawMessage) error {
	return s.backend.Write(&Entry{
		Key:      key,
		Endpoint: endpoint,
		Value:    value,
		StoredAt: s.clock.Now(),
	})
}

// InvalidatePrefix drops every entry whose endpoint lies under prefix and
// advances the generation.
func (s *Store) InvalidatePrefix(prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	removed, err := s.backend.DeleteWhere(func(e *Entry) bool {
		return UnderPath(e.Endpoint, prefix)
	})
	s.log.Debug().Str("prefix", prefix).Int("removed", removed).Msg("cache invalidated")
	return removed, err
}

// Clear drops every entry and advances the generation.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	return s.backend.Clear()
}

// Len returns the number of stored entries, fresh or not.
func (s *Store) Len() int {
	return s.backend.Len()
}

// TTL returns the freshness window.
func (s *Store) TTL() time.Duration {
	return s.ttl
}
