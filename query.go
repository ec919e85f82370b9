// Package dnstraverse explores, from one or more DNS root servers, every
// distinct path by which a recursive resolver could arrive at an
// authoritative answer for a query, using github.com/miekg/dns for wire
// format and transport.
package dnstraverse

import (
	"strings"

	"github.com/miekg/dns"
)

// Query is an immutable (qname, qtype, qclass) triple. Name comparisons are
// case-insensitive; Name is stored fully qualified and lowercased.
type Query struct {
	Name  string
	Type  uint16
	Class uint16
}

// NewQuery builds a Query, defaulting Class to IN and normalizing Name.
func NewQuery(name string, qtype uint16) Query {
	return Query{Name: canonicalName(name), Type: qtype, Class: dns.ClassINET}
}

func (q Query) String() string {
	return q.Name + " " + dns.ClassToString[q.Class] + " " + typeName(q.Type)
}

// Matches reports whether the (name, class, type) of a record satisfies
// this query, honoring the ANY wildcard on qtype.
func (q Query) Matches(name string, class, rtype uint16) bool {
	if !strings.EqualFold(canonicalName(name), q.Name) {
		return false
	}
	if class != q.Class {
		return false
	}
	return q.Type == dns.TypeANY || rtype == q.Type
}

// Bailiwick is the zone cut under which a referral is considered
// authoritative. RRs whose owner name is not in-bailiwick are untrustworthy
// and must be discarded rather than cached or chased.
type Bailiwick string

// NewBailiwick normalizes a zone name into a Bailiwick.
func NewBailiwick(name string) Bailiwick {
	return Bailiwick(canonicalName(name))
}

// Contains reports whether name is in-bailiwick: equal to the bailiwick or
// a strict subdomain of it, case-insensitively.
func (b Bailiwick) Contains(name string) bool {
	n := canonicalName(name)
	bw := string(b)
	if strings.EqualFold(n, bw) {
		return true
	}
	return strings.HasSuffix(n, "."+bw) || (bw == "." && strings.HasSuffix(n, "."))
}

func (b Bailiwick) String() string { return string(b) }

// canonicalName lowercases and fully-qualifies a domain name the way every
// name comparison in this package expects.
func canonicalName(name string) string {
	return dns.Fqdn(strings.ToLower(name))
}

func typeName(qtype uint16) string {
	if name, ok := dns.TypeToString[qtype]; ok {
		return name
	}
	return dns.Type(qtype).String()
}
