package version

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetPut(t *testing.T) {
	c := NewCache("", time.Minute, time.Hour)

	_, ok := c.Get("node-agent")
	assert.False(t, ok, "empty cache should miss")

	c.Put("node-agent", "1.2.3")

	got, ok := c.Get("node-agent")
	require.True(t, ok)
	assert.Equal(t, "1.2.3", got)

	_, ok = c.Get("other")
	assert.False(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache("", 10*time.Millisecond, time.Hour)

	c.Put("node-agent", "1.2.3")

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("node-agent")
	assert.False(t, ok, "entry past TTL should miss")
}

func TestCacheMaxAgePurge(t *testing.T) {
	c := NewCache("", time.Hour, 10*time.Millisecond)

	c.Put("node-agent", "1.2.3")

	time.Sleep(20 * time.Millisecond)

	// Putting another entry triggers the purge of stale ones.
	c.Put("other", "2.0.0")

	c.mu.Lock()
	_, present := c.entries["node-agent"]
	c.mu.Unlock()

	assert.False(t, present, "entry past max age should be purged")
}

func TestCachePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.json")

	c := NewCache(path, time.Minute, time.Hour)
	c.Put("node-agent", "1.2.3")
	c.Put("process-agent", "4.5.6")

	// A fresh cache over the same file sees the persisted entries.
	reloaded := NewCache(path, time.Minute, time.Hour)

	got, ok := reloaded.Get("node-agent")
	require.True(t, ok)
	assert.Equal(t, "1.2.3", got)

	got, ok = reloaded.Get("process-agent")
	require.True(t, ok)
	assert.Equal(t, "4.5.6", got)
}

func TestCacheCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	c := NewCache(path, time.Minute, time.Hour)

	_, ok := c.Get("node-agent")
	assert.False(t, ok)
}
