package cache

import (
	"sync"
)

// MemoryBackend is an in-memory cache backend.
type MemoryBackend struct {
	entries map[string]*Entry
	mu      sync.RWMutex
}

// NewMemoryBackend creates a new in-memory cache backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]*Entry),
	}
}

// Read returns the cached entry for key or nil if absent.
func (b *MemoryBackend) Read(key string) *Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if entry, ok := b.entries[key]; ok {
		return entry.clone()
	}
	return nil
}

// Write persists the entry.
func (b *MemoryBackend) Write(entry *Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[entry.Key] = entry.clone()
	return nil
}

// DeleteWhere removes matching entries.
func (b *MemoryBackend) DeleteWhere(match func(*Entry) bool) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, entry := range b.entries {
		if match(entry) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Clear removes all entries.
func (b *MemoryBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]*Entry)
	return nil
}

// Len returns the number of stored entries.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Seed adds entries directly (for testing).
func (b *MemoryBackend) Seed(entries ...*Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, entry := range entries {
		b.entries[entry.Key] = entry.clone()
	}
}
