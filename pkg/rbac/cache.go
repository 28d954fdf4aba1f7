package rbac

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Entry is a cached permission set
type Entry struct {
	Keys []string `json:"keys"`
	// RoleIDs are the roles whose bundles produced Keys
	RoleIDs   []int64   `json:"role_ids"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at now
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Cache stores resolved permission sets
type Cache interface {
	// Get returns the entry for key; ok is false on a miss
	Get(ctx context.Context, key SubjectKey) (entry *Entry, ok bool, err error)
	// Set stores the entry for key
	Set(ctx context.Context, key SubjectKey, entry *Entry) error
	// InvalidateUser drops every entry of the user across all contexts
	InvalidateUser(ctx context.Context, userID int64) error
	// InvalidateRole drops every entry computed from the role
	InvalidateRole(ctx context.Context, roleID int64) error
	// Purge drops everything
	Purge(ctx context.Context) error
}

// CacheStats reports cache effectiveness
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// MemoryCache is a bounded in-process Cache.
//
// Lookups take only the read lock and do not touch LRU recency, so
// concurrent readers never block each other.
type MemoryCache struct {
	mu     sync.RWMutex
	lru    *simplelru.LRU[SubjectKey, *Entry]
	byUser map[int64]map[SubjectKey]struct{}
	byRole map[int64]map[SubjectKey]struct{}
	now    func() time.Time

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewMemoryCache creates a cache holding at most size entries
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = 10000
	}
	c := &MemoryCache{
		byUser: make(map[int64]map[SubjectKey]struct{}),
		byRole: make(map[int64]map[SubjectKey]struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
	lru, err := simplelru.NewLRU[SubjectKey, *Entry](size, c.onEvict)
	if err != nil {
		// Only returned for non-positive sizes
		panic(fmt.Sprintf("rbac: failed to create LRU: %v", err))
	}
	c.lru = lru
	return c
}

// WithClock overrides the cache's clock
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// Get implements Cache
func (c *MemoryCache) Get(_ context.Context, key SubjectKey) (*Entry, bool, error) {
	c.mu.RLock()
	entry, ok := c.lru.Peek(key)
	c.mu.RUnlock()

	if !ok || entry.Expired(c.now()) {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return entry, true, nil
}

// Set implements Cache
func (c *MemoryCache) Set(_ context.Context, key SubjectKey, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop the old entry first so its role index is cleaned up
	c.lru.Remove(key)
	if c.lru.Add(key, entry) {
		c.evictions.Add(1)
	}

	addIndex(c.byUser, key.UserID, key)
	for _, roleID := range entry.RoleIDs {
		addIndex(c.byRole, roleID, key)
	}
	return nil
}

// InvalidateUser implements Cache
func (c *MemoryCache) InvalidateUser(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byUser[userID] {
		c.lru.Remove(key)
	}
	delete(c.byUser, userID)
	return nil
}

// InvalidateRole implements Cache
func (c *MemoryCache) InvalidateRole(_ context.Context, roleID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byRole[roleID] {
		c.lru.Remove(key)
	}
	delete(c.byRole, roleID)
	return nil
}

// Purge implements Cache
func (c *MemoryCache) Purge(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.byUser = make(map[int64]map[SubjectKey]struct{})
	c.byRole = make(map[int64]map[SubjectKey]struct{})
	return nil
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	size := c.lru.Len()
	c.mu.RUnlock()

	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
	}
}

// onEvict runs under c.mu for every removal, explicit or capacity-driven
func (c *MemoryCache) onEvict(key SubjectKey, entry *Entry) {
	removeIndex(c.byUser, key.UserID, key)
	for _, roleID := range entry.RoleIDs {
		removeIndex(c.byRole, roleID, key)
	}
}

func addIndex(index map[int64]map[SubjectKey]struct{}, id int64, key SubjectKey) {
	keys, ok := index[id]
	if !ok {
		keys = make(map[SubjectKey]struct{})
		index[id] = keys
	}
	keys[key] = struct{}{}
}

func removeIndex(index map[int64]map[SubjectKey]struct{}, id int64, key SubjectKey) {
	keys, ok := index[id]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(index, id)
	}
}
