package dnstraverse

import (
	"context"
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// State is a Referral's position in its lifecycle (spec.md section 3).
type State int

const (
	StateUnresolved State = iota
	StateResolvingServer
	StateQuerying
	StateExpanded
	StateAnswered
	StateFastSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "UNRESOLVED"
	case StateResolvingServer:
		return "RESOLVING_SERVER"
	case StateQuerying:
		return "QUERYING"
	case StateExpanded:
		return "EXPANDED"
	case StateAnswered:
		return "ANSWERED"
	case StateFastSkipped:
		return "FAST_SKIPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Referral is one node in the traversal tree (spec.md section 3).
type Referral struct {
	RefID      string
	Query      Query
	Bailiwick  Bailiwick
	Parent     *Referral
	ParentIP   netip.Addr
	ServerName string
	ServerIPs  []netip.Addr
	Depth      int
	State      State
	Responses  []*DecodedResponse // one per ServerIPs entry, same order
	Children   []*Referral
	Warnings   []string
	ReplacedBy *Referral
	FailReason string // "depth_exceeded", "loop", "unresolvable_server"

	dist     map[Outcome]float64
	nextKid  int
	fromRoot *Referral // the root-of-tree Referral, for CNAME restarts
}

func newReferral(parent *Referral, parentIP netip.Addr, serverName string, serverIPs []netip.Addr, q Query, bw Bailiwick, depth int) *Referral {
	r := &Referral{
		Query:      q,
		Bailiwick:  bw,
		Parent:     parent,
		ParentIP:   parentIP,
		ServerName: canonicalName(serverName),
		ServerIPs:  serverIPs,
		Depth:      depth,
		State:      StateUnresolved,
	}
	if parent != nil {
		parent.nextKid++
		r.RefID = parent.RefID + "." + strconv.Itoa(parent.nextKid)
		r.fromRoot = parent.fromRoot
	}
	return r
}

// fingerprint identifies a Referral for loop detection and fast-mode dedup:
// (server_name, query, bailiwick).
func (r *Referral) fingerprint() string {
	return r.ServerName + "|" + r.Query.String() + "|" + string(r.Bailiwick)
}

// ancestors walks from r's parent up to the root, inclusive of neither r nor
// the function's caller semantics around it -- callers decide whether to
// compare r against its own ancestors.
func (r *Referral) ancestors() []*Referral {
	var out []*Referral
	for a := r.Parent; a != nil; a = a.Parent {
		out = append(out, a)
	}
	return out
}

// Distribution returns the outcome probability distribution computed for
// this Referral. It is only valid once the Referral is terminal or
// EXPANDED; call Traverser.expand (via Run) first.
func (r *Referral) Distribution() map[Outcome]float64 {
	return r.dist
}

// expand drives one Referral through its full lifecycle: depth/loop guards,
// fast-mode dedup, server-name resolution, per-IP querying, child
// construction, and its outcome distribution.
func (t *Traverser) expand(ctx context.Context, r *Referral) {
	t.notifyMain("start", r)

	if r.Depth > t.cfg.MaxDepth {
		r.State = StateFailed
		r.FailReason = "depth_exceeded"
		r.dist = map[Outcome]float64{OutcomeFailed: 1}
		return
	}

	for _, a := range r.ancestors() {
		if a.ServerName == r.ServerName && a.Query == r.Query && a.Bailiwick == r.Bailiwick {
			r.State = StateFailed
			r.FailReason = "loop"
			r.dist = map[Outcome]float64{OutcomeFailed: 1}
			return
		}
	}

	if t.cfg.Fast {
		if existing, ok := t.fingerprints[r.fingerprint()]; ok && existing != r {
			r.State = StateFastSkipped
			r.ReplacedBy = existing
			r.dist = existing.dist
			t.notifyMain("answer_fast", r)
			return
		}
		t.fingerprints[r.fingerprint()] = r
	}

	if len(r.ServerIPs) == 0 {
		r.State = StateResolvingServer
		r.ServerIPs = t.resolveServerName(ctx, r)
		if len(r.ServerIPs) == 0 {
			r.State = StateFailed
			r.FailReason = "unresolvable_server"
			r.dist = map[Outcome]float64{OutcomeFailed: 1}
			return
		}
	}
	t.recordServer(r.ServerName, r.ServerIPs)

	r.State = StateQuerying
	r.Responses = make([]*DecodedResponse, len(r.ServerIPs))
	for i, ip := range r.ServerIPs {
		r.Responses[i] = t.resolveOne(ctx, ip, r.Query, r.Bailiwick)
	}

	contributions := make([]map[Outcome]float64, len(r.ServerIPs))
	for i, dr := range r.Responses {
		kids := t.childrenFor(ctx, r, dr)
		r.Children = append(r.Children, kids...)
		if len(kids) == 0 {
			contributions[i] = map[Outcome]float64{dr.Outcome: 1}
			continue
		}
		for _, kid := range kids {
			t.expand(ctx, kid)
		}
		contributions[i] = averageDistributions(childDistributions(kids))
	}

	r.dist = averageDistributions(contributions)
	if len(r.Children) > 0 {
		r.State = StateExpanded
		t.notifyMain("new_referral_set", r)
	} else {
		r.State = StateAnswered
		t.notifyMain("answer", r)
	}
}

// childrenFor builds the child Referrals a single per-IP response produces,
// per spec.md section 4.4: one set per REFERRAL (one child per distinct
// in-bailiwick NS target), or a single CNAME-restart child for an ANSWER
// whose final name differs from the query name.
func (t *Traverser) childrenFor(ctx context.Context, r *Referral, dr *DecodedResponse) []*Referral {
	switch dr.Outcome {
	case OutcomeReferral:
		return t.referralChildren(r, dr)
	case OutcomeAnswer:
		if dr.FinalName != "" && r.Query.Type != dns.TypeCNAME {
			return []*Referral{t.cnameRestartChild(r, dr)}
		}
	}
	return nil
}

func (t *Traverser) referralChildren(r *Referral, dr *DecodedResponse) []*Referral {
	ns, _, _ := authorityPartition(dr.Message)
	seen := map[string]struct{}{}
	var children []*Referral
	for _, rr := range ns {
		nsrr, ok := rr.(*dns.NS)
		if !ok || !r.Bailiwick.Contains(nsrr.Hdr.Name) {
			continue
		}
		target := canonicalName(nsrr.Ns)
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		glue := glueForName(dr.Message, target)
		newBailiwick := NewBailiwick(nsrr.Hdr.Name)
		child := newReferral(r, dr.ServerIP, target, glue, r.Query, newBailiwick, r.Depth+1)
		children = append(children, child)
	}
	return children
}

func (t *Traverser) cnameRestartChild(r *Referral, dr *DecodedResponse) *Referral {
	root := r.fromRoot
	if root == nil {
		root = r
	}
	q := NewQuery(dr.FinalName, r.Query.Type)
	child := newReferral(r, dr.ServerIP, root.ServerName, append([]netip.Addr(nil), root.ServerIPs...), q, NewBailiwick("."), r.Depth+1)
	return child
}

// resolveServerName issues a side-traversal for (server_name, A) and, if
// FollowAAAA is set, (server_name, AAAA), reusing the current root
// candidate list as the starting point.
func (t *Traverser) resolveServerName(ctx context.Context, r *Referral) []netip.Addr {
	if _, cycling := t.resolving[r.ServerName]; cycling {
		return nil
	}
	t.resolving[r.ServerName] = struct{}{}
	defer delete(t.resolving, r.ServerName)

	t.notifyResolve("start", r)
	root := r.fromRoot
	if root == nil {
		root = r
	}

	var ips []netip.Addr
	ips = append(ips, t.resolveVia(ctx, root, r.ServerName, dns.TypeA)...)
	if t.cfg.FollowAAAA {
		ips = append(ips, t.resolveVia(ctx, root, r.ServerName, dns.TypeAAAA)...)
	}
	t.notifyResolve("answer_fast", r)
	return dedupAddrs(ips)
}

// resolveVia runs a nested, independent traversal for (name, qtype) seeded
// from the same root candidate as the referring Referral, and extracts A
// or AAAA addresses from whatever answer it reaches.
func (t *Traverser) resolveVia(ctx context.Context, root *Referral, name string, qtype uint16) []netip.Addr {
	sub := newReferral(nil, netip.Addr{}, root.ServerName, append([]netip.Addr(nil), root.ServerIPs...), NewQuery(name, qtype), NewBailiwick("."), 0)
	sub.fromRoot = sub
	t.expand(ctx, sub)
	return addressesFromTree(sub, qtype)
}

func addressesFromTree(r *Referral, qtype uint16) []netip.Addr {
	var out []netip.Addr
	for _, dr := range r.Responses {
		if dr.Outcome == OutcomeAnswer && dr.Message != nil {
			out = append(out, addrsFromRRs(dr.Message.Answer, qtype)...)
		}
	}
	for _, kid := range r.Children {
		out = append(out, addressesFromTree(kid, qtype)...)
	}
	return out
}

// averageDistributions returns the uniform mean across a set of outcome
// distributions, skipping nils.
func averageDistributions(dists []map[Outcome]float64) map[Outcome]float64 {
	out := map[Outcome]float64{}
	n := 0
	for _, d := range dists {
		if d == nil {
			continue
		}
		n++
		for o, p := range d {
			out[o] += p
		}
	}
	if n == 0 {
		return out
	}
	for o := range out {
		out[o] /= float64(n)
	}
	return out
}

func childDistributions(kids []*Referral) []map[Outcome]float64 {
	out := make([]map[Outcome]float64, len(kids))
	for i, k := range kids {
		out[i] = k.dist
	}
	return out
}

// glueForName collects A/AAAA addresses from msg's additional section whose
// owner name matches nsName, the standard source of in-message glue for a
// referral's NS targets.
func glueForName(msg *dns.Msg, nsName string) []netip.Addr {
	var out []netip.Addr
	target := canonicalName(nsName)
	for _, rr := range msg.Extra {
		if !strings.EqualFold(canonicalName(rr.Header().Name), target) {
			continue
		}
		switch rr := rr.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(rr.A.To4()); ok {
				out = append(out, addr)
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(rr.AAAA.To16()); ok {
				out = append(out, addr)
			}
		}
	}
	return out
}

// addrsFromRRs extracts A or AAAA addresses of the given qtype from rrs.
func addrsFromRRs(rrs []dns.RR, qtype uint16) []netip.Addr {
	var out []netip.Addr
	for _, rr := range rrs {
		switch qtype {
		case dns.TypeA:
			if a, ok := rr.(*dns.A); ok {
				if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
					out = append(out, addr)
				}
			}
		case dns.TypeAAAA:
			if a, ok := rr.(*dns.AAAA); ok {
				if addr, ok := netip.AddrFromSlice(a.AAAA.To16()); ok {
					out = append(out, addr)
				}
			}
		}
	}
	return out
}

func dedupAddrs(addrs []netip.Addr) []netip.Addr {
	seen := map[netip.Addr]struct{}{}
	var out []netip.Addr
	for _, a := range addrs {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

func (r *Referral) bailiwickLabel() string {
	return strings.TrimSuffix(string(r.Bailiwick), ".")
}
