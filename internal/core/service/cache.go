package service

import (
	"container/list"
	"sync"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
)

// CachedVerification is what VerifyCache keeps per credential digest.
type CachedVerification struct {
	UserID    string
	User      *domain.User
	ExpiresAt time.Time
}

// VerifyCache is an LRU cache of positive verification results with a TTL.
//
// Eviction: entries expire TTL after insertion and the least recently used
// entry is evicted once Capacity is reached. Invalidations bump a
// generation counter; Put with a stale generation is ignored so a verify
// that started before a revocation cannot re-populate the cache.
type VerifyCache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	byUser   map[string]map[string]struct{}
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	gen      uint64
	now      func() time.Time
}

type verifyEntry struct {
	key        string
	value      CachedVerification
	insertedAt time.Time
}

// NewVerifyCache creates a cache. A non-positive ttl disables caching.
func NewVerifyCache(capacity int, ttl time.Duration, now func() time.Time) *VerifyCache {
	if capacity <= 0 {
		capacity = 10000
	}
	if now == nil {
		now = time.Now
	}
	return &VerifyCache{
		items:    make(map[string]*list.Element),
		byUser:   make(map[string]map[string]struct{}),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      now,
	}
}

// Generation returns the current invalidation generation.
func (c *VerifyCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Get returns a live entry and marks it most recently used.
func (c *VerifyCache) Get(key string) (CachedVerification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return CachedVerification{}, false
	}
	e := elem.Value.(*verifyEntry)
	now := c.now()
	if now.Sub(e.insertedAt) >= c.ttl || !now.Before(e.value.ExpiresAt) {
		c.removeLocked(elem)
		return CachedVerification{}, false
	}
	c.order.MoveToFront(elem)
	return e.value, true
}

// Put stores v under key if gen is still current. Reports whether it stored.
func (c *VerifyCache) Put(key string, v CachedVerification, gen uint64) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
	for c.order.Len() >= c.capacity {
		c.removeLocked(c.order.Back())
	}

	elem := c.order.PushFront(&verifyEntry{key: key, value: v, insertedAt: c.now()})
	c.items[key] = elem
	keys, ok := c.byUser[v.UserID]
	if !ok {
		keys = make(map[string]struct{})
		c.byUser[v.UserID] = keys
	}
	keys[key] = struct{}{}
	return true
}

// Invalidate drops key and bumps the generation.
func (c *VerifyCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
}

// Forget drops key without bumping the generation. Only for credentials
// that no longer exist in storage.
func (c *VerifyCache) Forget(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if ok {
		c.removeLocked(elem)
	}
	return ok
}

// InvalidateUser drops every entry of userID and bumps the generation.
func (c *VerifyCache) InvalidateUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	n := 0
	for key := range c.byUser[userID] {
		if elem, ok := c.items[key]; ok {
			c.removeLocked(elem)
			n++
		}
	}
	delete(c.byUser, userID)
	return n
}

// Purge drops everything.
func (c *VerifyCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.items = make(map[string]*list.Element)
	c.byUser = make(map[string]map[string]struct{})
	c.order.Init()
}

// Len returns the number of cached entries, expired ones included.
func (c *VerifyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *VerifyCache) removeLocked(elem *list.Element) {
	e := elem.Value.(*verifyEntry)
	c.order.Remove(elem)
	delete(c.items, e.key)
	if keys, ok := c.byUser[e.value.UserID]; ok {
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(c.byUser, e.value.UserID)
		}
	}
}
