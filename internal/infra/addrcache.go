package infra

import (
	"errors"
	"net/netip"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AddressEntry is the result of one successful resolution.
type AddressEntry struct {
	Addrs      []netip.Addr
	ResolvedAt time.Time
}

// AddressStore persists address cache entries across process restarts.
type AddressStore interface {
	All() (map[string]AddressEntry, error)
	Save(host string, entry AddressEntry) error
	Remove(host string) error
}

// AddressCache maps host names to their resolved IPv4 addresses. Entries
// never expire when the TTL is zero.
//
// Lookup, Put and Forget only touch memory. Changes reach the store when the
// owner calls Flush, outside any polling loop.
type AddressCache struct {
	mu      sync.RWMutex
	entries map[string]AddressEntry
	dirty   map[string]struct{}
	store   AddressStore
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// CacheOption configures an AddressCache.
type CacheOption func(*AddressCache)

// WithStore backs the cache with persistent storage. Existing entries are
// loaded when the cache is created; changes are written by Flush.
func WithStore(store AddressStore) CacheOption {
	return func(c *AddressCache) { c.store = store }
}

// WithTTL expires entries older than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *AddressCache) { c.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *AddressCache) { c.now = now }
}

// WithLogger sets the logger used to report storage failures.
func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *AddressCache) { c.logger = logger }
}

// NewAddressCache creates a cache. Storage load failures are logged and the
// cache starts empty.
func NewAddressCache(opts ...CacheOption) *AddressCache {
	c := &AddressCache{
		entries: make(map[string]AddressEntry),
		dirty:   make(map[string]struct{}),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store != nil {
		stored, err := c.store.All()
		if err != nil {
			c.logger.Warn("Failed to load address cache", zap.Error(err))
		}
		for host, entry := range stored {
			if len(entry.Addrs) > 0 {
				c.entries[host] = entry
			}
		}
	}
	return c
}

// Lookup returns a copy of the addresses cached for host. Expired entries
// are dropped.
func (c *AddressCache) Lookup(host string) ([]netip.Addr, bool) {
	c.mu.RLock()
	entry, ok := c.entries[host]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.expired(entry) {
		c.mu.Lock()
		// A Put may have refreshed the entry since the read lock was released.
		if current, ok := c.entries[host]; ok && c.expired(current) {
			delete(c.entries, host)
			c.dirty[host] = struct{}{}
		}
		c.mu.Unlock()
		return nil, false
	}
	return slices.Clone(entry.Addrs), true
}

// Put records the addresses resolved for host. Empty lists are ignored.
func (c *AddressCache) Put(host string, addrs []netip.Addr) {
	if len(addrs) == 0 {
		return
	}
	entry := AddressEntry{Addrs: slices.Clone(addrs), ResolvedAt: c.now()}

	c.mu.Lock()
	c.entries[host] = entry
	c.dirty[host] = struct{}{}
	c.mu.Unlock()
}

// Forget drops the entry for host.
func (c *AddressCache) Forget(host string) {
	c.mu.Lock()
	delete(c.entries, host)
	c.dirty[host] = struct{}{}
	c.mu.Unlock()
}

// Flush writes every host changed since the last Flush to the store: present
// entries are saved and dropped ones removed. Hosts that fail stay pending
// for the next Flush. Flush may block on disk and must not be called from a
// polling loop. Without a store it only clears the pending set.
func (c *AddressCache) Flush() error {
	c.mu.Lock()
	pending := make(map[string]AddressEntry, len(c.dirty))
	present := make(map[string]bool, len(c.dirty))
	for host := range c.dirty {
		entry, ok := c.entries[host]
		pending[host] = entry
		present[host] = ok
	}
	clear(c.dirty)
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}

	var errs []error
	for host, entry := range pending {
		var err error
		if present[host] {
			err = c.store.Save(host, entry)
		} else {
			err = c.store.Remove(host)
		}
		if err != nil {
			c.logger.Warn("Failed to persist address cache entry",
				zap.String("host", host),
				zap.Error(err),
			)
			errs = append(errs, err)
			c.mu.Lock()
			c.dirty[host] = struct{}{}
			c.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// Pending returns the number of hosts waiting for Flush.
func (c *AddressCache) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dirty)
}

// Len returns the number of cached hosts.
func (c *AddressCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *AddressCache) expired(entry AddressEntry) bool {
	return c.ttl > 0 && c.now().Sub(entry.ResolvedAt) >= c.ttl
}
