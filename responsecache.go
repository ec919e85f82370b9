package dnstraverse

import (
	"net/netip"

	"github.com/MinnieMouse/dnstraverse/cache"
)

// ResponseCache is the default Cacher: a bailiwick-scoped, process-scoped
// map of DecodedResponses (spec.md section 4.3).
type ResponseCache struct {
	c *cache.Cache[*DecodedResponse]
}

// NewResponseCache returns an empty ResponseCache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{c: cache.New[*DecodedResponse]()}
}

func (rc *ResponseCache) key(server netip.Addr, q Query, bw Bailiwick) cache.Key {
	return cache.Key{Server: server, Qname: q.Name, Qtype: q.Type, Qclass: q.Class, Bailiwick: string(bw)}
}

func (rc *ResponseCache) Get(server netip.Addr, q Query, bw Bailiwick) *DecodedResponse {
	if rc == nil {
		return nil
	}
	v, ok := rc.c.Get(rc.key(server, q, bw))
	if !ok {
		return nil
	}
	return v
}

func (rc *ResponseCache) Set(server netip.Addr, q Query, bw Bailiwick, dr *DecodedResponse) {
	if rc == nil || dr == nil {
		return
	}
	rc.c.Set(rc.key(server, q, bw), dr)
}

// Entries returns the number of distinct (server, query, bailiwick)
// responses cached so far.
func (rc *ResponseCache) Entries() int {
	if rc == nil {
		return 0
	}
	return rc.c.Entries()
}

// HitRatio returns the cache hit ratio as a percentage, used by
// --show-all-stats.
func (rc *ResponseCache) HitRatio() float64 {
	if rc == nil {
		return 0
	}
	return rc.c.HitRatio()
}

var _ Cacher = (*ResponseCache)(nil)
