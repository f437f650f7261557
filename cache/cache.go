package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/unhide/models"
)

// entry holds a cached resolution with its creation timestamp.
type entry struct {
	response  *models.ResolveResponse
	createdAt time.Time
}

// Cache is an in-memory TTL cache of resolve responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a Cache holding at most maxEntries responses. Entries older
// than ttl are swept in the background every ttl/12 (at least a minute).
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		done:       make(chan struct{}),
	}

	interval := ttl / 12
	if interval < time.Minute {
		interval = time.Minute
	}
	go c.cleanupLoop(interval)
	return c
}

// Key identifies a resolution by URL, step ceiling and the preview and
// include-body flags.
func Key(url string, maxSteps int, preview, includeBody bool) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(maxSteps)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(preview)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(includeBody)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached response younger than both maxAge and the cache TTL.
// maxAge <= 0 skips the lookup.
func (c *Cache) Get(key string, maxAge time.Duration) (*models.ResolveResponse, bool) {
	if maxAge <= 0 {
		return nil, false
	}
	if maxAge > c.ttl {
		maxAge = c.ttl
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}
	return e.response, true
}

// Set stores a response. At capacity the oldest entry is evicted.
func (c *Cache) Set(key string, resp *models.ResolveResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[key] = &entry{response: resp, createdAt: c.now()}
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}
