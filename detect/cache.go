package detect

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Cache stores platform-resolution results keyed by the exact input URL.
// Implementations must degrade silently: a broken backing store behaves
// like an empty cache and never fails detection.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, res Result)
}

// MemoryCache is a Cache held entirely in memory. Zero value not usable;
// create with NewMemoryCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]Result
}

// NewMemoryCache creates an empty in-memory resolution cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Result)}
}

// Get returns the cached result for key, if any.
func (m *MemoryCache) Get(_ context.Context, key string) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.entries[key]
	return res, ok
}

// Set stores a result for key.
func (m *MemoryCache) Set(_ context.Context, key string, res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = res
}

// FileCache persists resolutions as a JSON mapping in a single
// user-scoped file. A corrupt or missing file reads as empty; writes are
// best-effort.
type FileCache struct {
	path string
	mu   sync.Mutex
}

// NewFileCache creates a FileCache at the default user-scoped location
// (~/.cache/ctfbridge/platforms.json).
func NewFileCache() *FileCache {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return NewFileCacheAt(filepath.Join(cacheDir, "ctfbridge", "platforms.json"))
}

// NewFileCacheAt creates a FileCache at an explicit path.
func NewFileCacheAt(path string) *FileCache {
	return &FileCache{path: path}
}

// Get returns the cached result for key, if any.
func (f *FileCache) Get(_ context.Context, key string) (Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.load()[key]
	return res, ok
}

// Set stores a result for key. Write failures are dropped: the cache is
// advisory and must never fail detection.
func (f *FileCache) Set(_ context.Context, key string, res Result) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.load()
	entries[key] = res

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return
	}
	_ = os.WriteFile(f.path, data, 0o600) //nolint:errcheck // best-effort
}

func (f *FileCache) load() map[string]Result {
	entries := make(map[string]Result)
	data, err := os.ReadFile(f.path)
	if err != nil {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupt cache file degrades to empty, forcing fresh detection.
		return make(map[string]Result)
	}
	return entries
}
