package dnstraverse

import "net/netip"

// Cacher is the Response Cache contract (spec.md section 4.3): a mapping
// keyed by (server IP, qname, qtype, qclass, bailiwick) to a decoded
// response. Bailiwick is part of the key because the interpretation of
// in-bailiwick depends on it -- caching without it could leak
// out-of-bailiwick records into a context where they'd be trusted.
//
// Implementations must treat a returned *DecodedResponse as immutable;
// callers never mutate it.
type Cacher interface {
	Get(server netip.Addr, q Query, bw Bailiwick) *DecodedResponse
	Set(server netip.Addr, q Query, bw Bailiwick, dr *DecodedResponse)
}
