package dnstraverse

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func TestAverageDistributionsUniformMean(t *testing.T) {
	d := averageDistributions([]map[Outcome]float64{
		{OutcomeAnswer: 1},
		{OutcomeTimeout: 1},
	})
	if d[OutcomeAnswer] != 0.5 || d[OutcomeTimeout] != 0.5 {
		t.Fatalf("averageDistributions = %v, want 0.5/0.5", d)
	}
}

func TestAverageDistributionsSkipsNils(t *testing.T) {
	d := averageDistributions([]map[Outcome]float64{
		{OutcomeAnswer: 1},
		nil,
	})
	if d[OutcomeAnswer] != 1 {
		t.Fatalf("averageDistributions with a nil entry = %v, want {ANSWER: 1}", d)
	}
}

func TestNewReferralRefIDScheme(t *testing.T) {
	root := newReferral(nil, netip.Addr{}, "a.root-servers.net.", nil, NewQuery("example.com", dns.TypeA), NewBailiwick("."), 0)
	root.RefID = "1"
	child1 := newReferral(root, netip.Addr{}, "ns1.example.com.", nil, root.Query, NewBailiwick("example.com"), 1)
	child2 := newReferral(root, netip.Addr{}, "ns2.example.com.", nil, root.Query, NewBailiwick("example.com"), 1)
	if child1.RefID != "1.1" || child2.RefID != "1.2" {
		t.Fatalf("RefIDs = %q, %q, want 1.1, 1.2", child1.RefID, child2.RefID)
	}
}

func newTestTraverser(t *testing.T, maxDepth int) *Traverser {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxDepth = maxDepth
	tr, err := NewTraverser(cfg)
	if err != nil {
		t.Fatalf("NewTraverser: %v", err)
	}
	return tr
}

func TestExpandFailsOnDepthExceeded(t *testing.T) {
	tr := newTestTraverser(t, 3)
	r := newReferral(nil, netip.Addr{}, "ns.example.com.", []netip.Addr{netip.MustParseAddr("192.0.2.1")}, NewQuery("example.com", dns.TypeA), NewBailiwick("."), 10)
	tr.expand(context.Background(), r)
	if r.State != StateFailed || r.FailReason != "depth_exceeded" {
		t.Fatalf("State=%v FailReason=%q, want FAILED/depth_exceeded", r.State, r.FailReason)
	}
	if r.dist[OutcomeFailed] != 1 {
		t.Fatalf("dist = %v, want {FAILED: 1}", r.dist)
	}
}

func TestExpandDetectsAncestorLoop(t *testing.T) {
	tr := newTestTraverser(t, 26)
	q := NewQuery("example.com", dns.TypeA)
	bw := NewBailiwick("example.com")
	root := newReferral(nil, netip.Addr{}, "ns1.example.com.", []netip.Addr{netip.MustParseAddr("192.0.2.1")}, q, bw, 0)
	root.RefID = "1"
	// A descendant referring back to the same (server_name, query, bailiwick).
	child := newReferral(root, netip.Addr{}, "ns1.example.com.", []netip.Addr{netip.MustParseAddr("192.0.2.1")}, q, bw, 1)
	tr.expand(context.Background(), child)
	if child.State != StateFailed || child.FailReason != "loop" {
		t.Fatalf("State=%v FailReason=%q, want FAILED/loop", child.State, child.FailReason)
	}
}

func TestExpandFastModeSkipsDuplicateFingerprint(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = []dns.RR{mustRR(t, "example.com. 300 IN A 192.0.2.10")}
		_ = w.WriteMsg(m)
	})
	cfg := DefaultConfig()
	cfg.DNSPort = port
	cfg.Fast = true
	tr, err := NewTraverser(cfg)
	if err != nil {
		t.Fatalf("NewTraverser: %v", err)
	}

	q := NewQuery("example.com", dns.TypeA)
	bw := NewBailiwick(".")
	root := newReferral(nil, netip.Addr{}, "ns1.example.com.", nil, q, bw, 0)
	root.RefID = "1"
	root.fromRoot = root
	root.ServerIPs = []netip.Addr{addr}
	tr.expand(context.Background(), root)

	sibling := newReferral(nil, netip.Addr{}, "ns1.example.com.", []netip.Addr{addr}, q, bw, 0)
	sibling.RefID = "2"
	sibling.fromRoot = sibling
	tr.expand(context.Background(), sibling)

	if sibling.State != StateFastSkipped || sibling.ReplacedBy != root {
		t.Fatalf("State=%v ReplacedBy=%v, want FAST_SKIPPED replaced by root", sibling.State, sibling.ReplacedBy)
	}
	if sibling.dist[OutcomeAnswer] != root.dist[OutcomeAnswer] {
		t.Fatalf("fast-skipped distribution %v != original %v", sibling.dist, root.dist)
	}
}

func TestExpandBuildsReferralChildrenFromGlue(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Ns = []dns.RR{mustRR(t, "example.com. 3600 IN NS ns1.example.com.")}
		m.Extra = []dns.RR{mustRR(t, "ns1.example.com. 3600 IN A 192.0.2.1")}
		_ = w.WriteMsg(m)
	})
	cfg := DefaultConfig()
	cfg.DNSPort = port
	cfg.Timeout = 200 * time.Millisecond
	cfg.Retries = 0
	tr, err := NewTraverser(cfg)
	if err != nil {
		t.Fatalf("NewTraverser: %v", err)
	}

	root := newReferral(nil, netip.Addr{}, "root.", []netip.Addr{addr}, NewQuery("example.com", dns.TypeA), NewBailiwick("."), 0)
	root.RefID = "1"
	root.fromRoot = root
	tr.expand(context.Background(), root)

	if len(root.Children) != 1 {
		t.Fatalf("len(Children) = %d, want 1", len(root.Children))
	}
	kid := root.Children[0]
	if kid.ServerName != "ns1.example.com." || len(kid.ServerIPs) != 1 || kid.ServerIPs[0] != netip.MustParseAddr("192.0.2.1") {
		t.Fatalf("child = %+v, want ns1.example.com. with glue 192.0.2.1", kid)
	}
}
