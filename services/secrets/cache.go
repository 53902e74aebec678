package secrets

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/authvault/models"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	secret     models.Secret
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// SecretCache is an in-memory LRU cache with TTL for vault reads.
// Thread-safe implementation using sync.Mutex.
type SecretCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry // Key: secret name
	lruList *list.List             // Doubly linked list for LRU tracking
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time

	// gens counts invalidations per name and epoch counts clears; a read
	// started before either moved must not be stored
	gens  map[string]uint64
	epoch uint64
}

// NewSecretCache creates a cache. A non-positive maxSize or ttl disables caching.
func NewSecretCache(maxSize int, ttl time.Duration) *SecretCache {
	return &SecretCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		gens:    make(map[string]uint64),
	}
}

func (c *SecretCache) enabled() bool {
	return c != nil && c.maxSize > 0 && c.ttl > 0
}

func (c *SecretCache) isExpired(e *cacheEntry) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

// Get returns a copy of the cached secret, or false when missing or expired
func (c *SecretCache) Get(name string) (*models.Secret, bool) {
	if !c.enabled() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[name]
	if !exists || c.isExpired(entry) {
		c.misses++
		if exists {
			c.removeEntry(name)
		}
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++

	secret := entry.secret
	return &secret, true
}

// Generation returns a token for name that changes whenever the entry is
// invalidated or the cache is cleared. Take it before reading the vault and
// pass it to SetIfGeneration.
func (c *SecretCache) Generation(name string) uint64 {
	if !c.enabled() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.epoch + c.gens[name]
}

// set stores a secret unconditionally
func (c *SecretCache) set(secret models.Secret) {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store(secret)
}

// SetIfGeneration stores secret only if its name was not invalidated since
// gen was taken. It reports whether the secret was stored.
func (c *SecretCache) SetIfGeneration(secret models.Secret, gen uint64) bool {
	if !c.enabled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch+c.gens[secret.Name] != gen {
		return false
	}
	c.store(secret)
	return true
}

// store must be called with lock held. It evicts the least recently used
// entry when full.
func (c *SecretCache) store(secret models.Secret) {
	if entry, exists := c.entries[secret.Name]; exists {
		entry.secret = secret
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		secret:     secret,
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(secret.Name)
	c.entries[secret.Name] = entry
}

// Invalidate removes a specific cache entry
func (c *SecretCache) Invalidate(name string) {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[name]++
	c.removeEntry(name)
}

// Clear removes all entries from the cache
func (c *SecretCache) Clear() {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *SecretCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// removeEntry must be called with lock held
func (c *SecretCache) removeEntry(name string) {
	if entry, exists := c.entries[name]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, name)
	}
}

// evictLRU must be called with lock held
func (c *SecretCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	name := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, name)
}

// CleanupExpired removes all expired entries and returns how many were dropped
func (c *SecretCache) CleanupExpired() int {
	if !c.enabled() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for name, entry := range c.entries {
		if c.isExpired(entry) {
			c.removeEntry(name)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically drops expired entries until stopCh closes
func (c *SecretCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
