package version

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	defaultCacheTTL    = 15 * time.Minute
	defaultCacheMaxAge = 24 * time.Hour
)

type cacheEntry struct {
	Version   string    `json:"version"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache holds resolved "latest" versions with a freshness TTL. Entries
// older than maxAge are purged outright. The cache is persisted as a JSON
// file so a restarted resolver does not re-query the release API.
type Cache struct {
	mu      sync.Mutex
	path    string
	ttl     time.Duration
	maxAge  time.Duration
	entries map[string]cacheEntry
}

// NewCache creates a cache backed by path. An empty path keeps the cache
// in memory only.
func NewCache(path string, ttl, maxAge time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	if maxAge <= 0 {
		maxAge = defaultCacheMaxAge
	}

	c := &Cache{
		path:    path,
		ttl:     ttl,
		maxAge:  maxAge,
		entries: make(map[string]cacheEntry),
	}

	if path != "" {
		if err := c.load(); err != nil {
			log.Printf("Version cache %s unreadable, starting empty: %v", path, err)
		}
	}

	return c
}

// Get returns the cached version for component if it is still fresh.
func (c *Cache) Get(component string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeLocked()

	entry, ok := c.entries[component]
	if !ok {
		return "", false
	}

	if time.Since(entry.FetchedAt) > c.ttl {
		return "", false
	}

	return entry.Version, true
}

// Put records a freshly resolved version and persists the cache.
func (c *Cache) Put(component, ver string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[component] = cacheEntry{Version: ver, FetchedAt: time.Now()}
	c.purgeLocked()

	if err := c.saveLocked(); err != nil {
		log.Printf("Failed to persist version cache: %v", err)
	}
}

func (c *Cache) purgeLocked() {
	cutoff := time.Now().Add(-c.maxAge)

	for name, entry := range c.entries {
		if entry.FetchedAt.Before(cutoff) {
			delete(c.entries, name)
		}
	}
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	return json.Unmarshal(data, &c.entries)
}

func (c *Cache) saveLocked() error {
	if c.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	return nil
}
