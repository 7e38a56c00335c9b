// Package cache provides the URL-keyed DOM summary cache shared by the
// orchestrator and the discovery strategies. Entries expire by TTL, the
// table is bounded by an LRU policy, and oversized entries are rejected
// up front.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config bounds the cache. MaxEntryBytes of zero disables the size gate.
type Config struct {
	MaxEntries    int
	TTL           time.Duration
	MaxEntryBytes int
}

// DefaultConfig matches one page summary per recently visited URL
func DefaultConfig() Config {
	return Config{
		MaxEntries:    50,
		TTL:           30 * time.Second,
		MaxEntryBytes: 512 * 1024,
	}
}

// Stats is a point-in-time snapshot of cache effectiveness counters
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Rejected  int64 `json:"rejected"`
}

type entry struct {
	url      string
	text     string
	storedAt time.Time
}

// DOMCache is a thread-safe LRU+TTL cache of textual DOM summaries keyed
// by page URL. All mutations are atomic per call.
type DOMCache struct {
	mu      sync.Mutex
	config  Config
	order   *list.List // front = most recently used
	entries map[string]*list.Element

	hits      int64
	misses    int64
	evictions int64
	rejected  int64
}

// New creates a cache; non-positive config fields fall back to defaults
func New(config Config) *DOMCache {
	defaults := DefaultConfig()
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	return &DOMCache{
		config:  config,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Set stores the summary for a URL, replacing any previous entry. Returns
// false when the entry exceeds the per-entry byte cap; the cache is left
// untouched in that case.
func (c *DOMCache) Set(url, text string) bool {
	if c.config.MaxEntryBytes > 0 && len(text) > c.config.MaxEntryBytes {
		c.mu.Lock()
		c.rejected++
		c.mu.Unlock()
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[url]; ok {
		el.Value.(*entry).text = text
		el.Value.(*entry).storedAt = time.Now()
		c.order.MoveToFront(el)
		return true
	}

	c.entries[url] = c.order.PushFront(&entry{url: url, text: text, storedAt: time.Now()})
	for c.order.Len() > c.config.MaxEntries {
		c.evictOldest()
	}
	return true
}

// Get returns the cached summary when present and fresh, refreshing its
// LRU position. Expired entries are removed on access.
func (c *DOMCache) Get(url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[url]
	if !ok {
		c.misses++
		return "", false
	}
	e := el.Value.(*entry)
	if time.Since(e.storedAt) > c.config.TTL {
		c.removeElement(el)
		c.misses++
		return "", false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.text, true
}

// Has reports whether a fresh entry exists without touching LRU order or
// hit counters
func (c *DOMCache) Has(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[url]
	if !ok {
		return false
	}
	return time.Since(el.Value.(*entry).storedAt) <= c.config.TTL
}

// Remove drops the entry for a URL if present
func (c *DOMCache) Remove(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[url]; ok {
		c.removeElement(el)
	}
}

// Clear drops every entry, keeping the counters
func (c *DOMCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// CleanupExpired removes every expired entry and returns how many were
// dropped
func (c *DOMCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if time.Since(el.Value.(*entry).storedAt) > c.config.TTL {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Stats snapshots the counters
func (c *DOMCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.order.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Rejected:  c.rejected,
	}
}

// evictOldest removes the least-recently-used entry. Caller holds the lock.
func (c *DOMCache) evictOldest() {
	if el := c.order.Back(); el != nil {
		c.removeElement(el)
		c.evictions++
	}
}

// removeElement unlinks one entry. Caller holds the lock.
func (c *DOMCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry).url)
}
