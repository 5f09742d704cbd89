package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sahajakrushi/krushi-cli/internal/core"
)

const entryFileExtension = ".json"

// FilesystemBackend stores one JSON file per entry.
// Layout: ~/.krushi/cache/<sha256(key)>.json
type FilesystemBackend struct {
	root      string
	writeLock sync.Mutex
}

// NewFilesystemBackend creates a new filesystem-based cache backend.
func NewFilesystemBackend(root string) *FilesystemBackend {
	if root == "" {
		root = core.CacheRoot()
	}
	return &FilesystemBackend{root: root}
}

// Path returns the file path used for key (for debugging).
func (b *FilesystemBackend) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(b.root, hex.EncodeToString(sum[:])+entryFileExtension)
}

// Read returns the cached entry for key or nil if absent.
func (b *FilesystemBackend) Read(key string) *Entry {
	return readEntryFile(b.Path(key))
}

// readEntryFile parses an entry file. Corrupt files are removed.
func readEntryFile(path string) *Entry {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key == "" {
		os.Remove(path)
		return nil
	}
	return &entry
}

// Write persists the entry atomically.
func (b *FilesystemBackend) Write(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	if err := os.MkdirAll(b.root, 0750); err != nil {
		return err
	}

	// Write to temp file first, then rename (atomic)
	path := b.Path(entry.Key)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// DeleteWhere removes matching entries.
func (b *FilesystemBackend) DeleteWhere(match func(*Entry) bool) (int, error) {
	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	removed := 0
	for _, path := range b.entryFiles() {
		entry := readEntryFile(path)
		if entry == nil || !match(entry) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Clear removes all entries.
func (b *FilesystemBackend) Clear() error {
	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	for _, path := range b.entryFiles() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Len returns the number of entry files.
func (b *FilesystemBackend) Len() int {
	return len(b.entryFiles())
}

func (b *FilesystemBackend) entryFiles() []string {
	files, err := os.ReadDir(b.root)
	if err != nil {
		return nil
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), entryFileExtension) {
			continue
		}
		paths = append(paths, filepath.Join(b.root, file.Name()))
	}
	return paths
}
