package enrich

import (
	"sync"
	"time"

	"github.com/Veraticus/tally/internal/model"
)

type cacheEntry struct {
	expiry     time.Time
	suggestion *model.Suggestion
}

// suggestionCache remembers answers per descriptor, including "no
// suggestion", until they expire.
type suggestionCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	now     func() time.Time
	ttl     time.Duration
	mu      sync.RWMutex
	once    sync.Once
}

func newSuggestionCache(ttl time.Duration) *suggestionCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	c := &suggestionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *suggestionCache) get(key string) (*model.Suggestion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiry) {
		return nil, false
	}
	return entry.suggestion, true
}

func (c *suggestionCache) set(key string, s *model.Suggestion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		suggestion: s,
		expiry:     c.now().Add(c.ttl),
	}
}

func (c *suggestionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *suggestionCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evict()
		}
	}
}

func (c *suggestionCache) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
}

func (c *suggestionCache) close() {
	c.once.Do(func() { close(c.stopCh) })
}
