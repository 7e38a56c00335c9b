package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	c := New(Config{MaxEntries: 4, TTL: time.Minute})

	require.True(t, c.Set("https://example.com", "[summary]"))

	got, ok := c.Get("https://example.com")
	assert.True(t, ok)
	assert.Equal(t, "[summary]", got)

	_, ok = c.Get("https://other.com")
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := New(Config{MaxEntries: 4, TTL: 10 * time.Millisecond})
	c.Set("https://example.com", "[summary]")

	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("https://example.com")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries, "expired entry is removed on access")
}

func TestLRUEviction(t *testing.T) {
	c := New(Config{MaxEntries: 3, TTL: time.Minute})
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("https://site-%d.com", i), "dom")
	}

	// touch site-0 so site-1 becomes the eviction candidate
	_, ok := c.Get("https://site-0.com")
	require.True(t, ok)

	c.Set("https://site-3.com", "dom")

	_, ok = c.Get("https://site-1.com")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("https://site-0.com")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestMaxEntryBytesRejection(t *testing.T) {
	c := New(Config{MaxEntries: 4, TTL: time.Minute, MaxEntryBytes: 8})

	assert.False(t, c.Set("https://big.com", "this entry is larger than eight bytes"))
	_, ok := c.Get("https://big.com")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Rejected)

	assert.True(t, c.Set("https://ok.com", "tiny"))
}

func TestReplaceRefreshesEntry(t *testing.T) {
	c := New(Config{MaxEntries: 2, TTL: time.Minute})
	c.Set("https://example.com", "old")
	c.Set("https://example.com", "new")

	got, ok := c.Get("https://example.com")
	require.True(t, ok)
	assert.Equal(t, "new", got)
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestHasDoesNotTouchCounters(t *testing.T) {
	c := New(Config{MaxEntries: 2, TTL: time.Minute})
	c.Set("https://example.com", "dom")

	assert.True(t, c.Has("https://example.com"))
	assert.False(t, c.Has("https://missing.com"))

	stats := c.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}

func TestRemoveAndClear(t *testing.T) {
	c := New(Config{MaxEntries: 4, TTL: time.Minute})
	c.Set("https://a.com", "a")
	c.Set("https://b.com", "b")

	c.Remove("https://a.com")
	_, ok := c.Get("https://a.com")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCleanupExpired(t *testing.T) {
	c := New(Config{MaxEntries: 8, TTL: 10 * time.Millisecond})
	c.Set("https://old-1.com", "dom")
	c.Set("https://old-2.com", "dom")

	time.Sleep(25 * time.Millisecond)
	c.Set("https://fresh.com", "dom")

	removed := c.CleanupExpired()
	assert.Equal(t, 2, removed)
	assert.True(t, c.Has("https://fresh.com"))
}
