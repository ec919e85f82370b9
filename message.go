package dnstraverse

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// ResolveError reports that a response failed validate(): its question
// section does not match the query it was supposed to answer. A server
// returning this is either buggy or hostile and must not be trusted.
type ResolveError struct {
	Expected Query
	Got      []dns.Question
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("dnstraverse: response question mismatch: expected %s, got %v", e.Expected, e.Got)
}

// validate succeeds iff msg.Rcode != NOERROR, or msg has exactly one
// question whose (qname, qclass, qtype) matches expected case-insensitively.
func validate(msg *dns.Msg, expected Query) error {
	if msg.Rcode != dns.RcodeSuccess {
		return nil
	}
	if len(msg.Question) != 1 {
		return &ResolveError{Expected: expected, Got: msg.Question}
	}
	q := msg.Question[0]
	if !strings.EqualFold(canonicalName(q.Name), expected.Name) || q.Qclass != expected.Class || q.Qtype != expected.Type {
		return &ResolveError{Expected: expected, Got: msg.Question}
	}
	return nil
}

// answers returns the answer-section RRs matching (qname, qtype, qclass);
// qtype ANY matches all types. Returns nil if none match.
func answers(msg *dns.Msg, q Query) []dns.RR {
	return filterRRs(msg.Answer, q)
}

// additional returns the additional-section RRs matching (qname, qtype,
// qclass), used to collect glue A/AAAA for referral NS targets.
func additional(msg *dns.Msg, q Query) []dns.RR {
	return filterRRs(msg.Extra, q)
}

func filterRRs(rrs []dns.RR, q Query) []dns.RR {
	var out []dns.RR
	for _, rr := range rrs {
		if rr == nil {
			continue
		}
		h := rr.Header()
		if q.Matches(h.Name, h.Class, h.Rrtype) {
			out = append(out, rr)
		}
	}
	return out
}

// authorityPartition splits the authority section into NS, SOA, and
// everything else.
func authorityPartition(msg *dns.Msg) (ns, soa, other []dns.RR) {
	for _, rr := range msg.Ns {
		if rr == nil {
			continue
		}
		switch rr.Header().Rrtype {
		case dns.TypeNS:
			ns = append(ns, rr)
		case dns.TypeSOA:
			soa = append(soa, rr)
		default:
			other = append(other, rr)
		}
	}
	return
}

// followCNAMEs starting at qname repeatedly rewrites along CNAME RRs in the
// answer section of msg. It returns the terminal name reached and whether a
// loop was detected (in which case the returned name is meaningless).
//
// Termination:
//   - an RR of qtype appears for the current name: return that name.
//   - no CNAME is present for the current name: return that name.
//   - the current name leaves bailiwick: return the CNAME target but stop
//     chasing further.
//   - a previously-visited name reappears: loop, return ("", true).
//
// followCNAMEs is idempotent: re-applying it to its own (non-loop) result
// with the same message is a fixed point, since that name either carries
// an RR of qtype (case a), has no CNAME (case b), or lies outside the
// bailiwick (case c), and each of those returns it unchanged.
func followCNAMEs(msg *dns.Msg, qname string, qtype uint16, bw Bailiwick) (result string, loop bool) {
	current := canonicalName(qname)
	visited := map[string]struct{}{}
	for {
		if _, seen := visited[current]; seen {
			return "", true
		}
		visited[current] = struct{}{}

		if !bw.Contains(current) {
			return current, false
		}

		if hasAnswerType(msg, current, qtype) {
			return current, false
		}

		target, ok := cnameTargetFor(msg, current)
		if !ok {
			return current, false
		}
		current = target
	}
}

func hasAnswerType(msg *dns.Msg, name string, qtype uint16) bool {
	for _, rr := range msg.Answer {
		if rr == nil {
			continue
		}
		h := rr.Header()
		if strings.EqualFold(canonicalName(h.Name), name) && (qtype == dns.TypeANY || h.Rrtype == qtype) {
			return true
		}
	}
	return false
}

func cnameTargetFor(msg *dns.Msg, owner string) (string, bool) {
	for _, rr := range msg.Answer {
		if c, ok := rr.(*dns.CNAME); ok && strings.EqualFold(canonicalName(c.Hdr.Name), owner) {
			return canonicalName(c.Target), true
		}
	}
	return "", false
}

// isNodata is true iff the authority section contains at least one SOA, or
// contains no NS at all -- the conventional NOERROR/no-answer NODATA signal.
func isNodata(msg *dns.Msg) bool {
	ns, soa, _ := authorityPartition(msg)
	return len(soa) > 0 || len(ns) == 0
}

// cacheable partitions answer+authority+additional RRs of msg into good
// (in-bailiwick, usable), bad (out-of-bailiwick, discarded to prevent a
// delegating server from injecting records it has no authority over), and
// other (OPT and similar non-cacheable pseudo-RRs).
func cacheable(msg *dns.Msg, bw Bailiwick) (good, bad, other []dns.RR) {
	classify := func(rr dns.RR) {
		if rr == nil {
			return
		}
		h := rr.Header()
		if h.Rrtype == dns.TypeOPT || h.Rrtype == dns.TypeTSIG {
			other = append(other, rr)
			return
		}
		if bw.Contains(h.Name) {
			good = append(good, rr)
		} else {
			bad = append(bad, rr)
		}
	}
	for _, rr := range msg.Answer {
		classify(rr)
	}
	for _, rr := range msg.Ns {
		classify(rr)
	}
	for _, rr := range msg.Extra {
		classify(rr)
	}
	return
}
