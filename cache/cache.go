// Package cache provides the bailiwick-scoped Response Cache described in
// spec.md section 4.3: a process-scoped, lazily-populated map keyed by
// (server IP, qname, qtype, qclass, bailiwick), generic over the decoded
// value type so it carries no dependency on the dnstraverse package (which
// in turn depends on this package for its Cacher implementation).
package cache

import (
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/miekg/dns"
)

// Key identifies one cache entry. Bailiwick is part of the key because the
// interpretation of what counts as in-bailiwick depends on it -- caching
// without it could leak out-of-bailiwick records into a context where they
// would be deemed authoritative.
type Key struct {
	Server    netip.Addr
	Qname     string
	Qtype     uint16
	Qclass    uint16
	Bailiwick string
}

func canonKey(k Key) Key {
	k.Qname = strings.ToLower(dns.Fqdn(k.Qname))
	k.Bailiwick = strings.ToLower(dns.Fqdn(k.Bailiwick))
	return k
}

// Cache is a process-scoped, never-invalidated map of Key to V. It is
// populated lazily on first query to a given Key and is never evicted
// during a traversal (spec.md section 4.3).
type Cache[V any] struct {
	mu    sync.RWMutex
	m     map[Key]V
	count atomic.Uint64
	hits  atomic.Uint64
}

// New returns an empty Cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{m: make(map[Key]V)}
}

// Get returns the cached value for key and whether it was present.
func (c *Cache[V]) Get(key Key) (v V, ok bool) {
	if c == nil {
		return v, false
	}
	c.count.Add(1)
	c.mu.RLock()
	v, ok = c.m[canonKey(key)]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	}
	return
}

// Set stores value for key, overwriting any existing entry.
func (c *Cache[V]) Set(key Key, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.m[canonKey(key)] = value
	c.mu.Unlock()
}

// Entries returns the number of entries currently cached.
func (c *Cache[V]) Entries() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// HitRatio returns the cache hit ratio as a percentage.
func (c *Cache[V]) HitRatio() float64 {
	if c == nil {
		return 0
	}
	if count := c.count.Load(); count > 0 {
		return float64(c.hits.Load()*100) / float64(count)
	}
	return 0
}

// Clear empties the cache.
func (c *Cache[V]) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.m = make(map[Key]V)
	c.mu.Unlock()
}
