package dnstraverse

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func TestConfigValidateRejectsAlwaysTCPWithoutAllowTCP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlwaysTCP = true
	cfg.AllowTCP = false
	if err := cfg.validate(); err != ErrAlwaysTCPNeedsTCP {
		t.Fatalf("validate() = %v, want ErrAlwaysTCPNeedsTCP", err)
	}
}

func TestConfigValidateRejectsNonPositiveMaxDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDepth = 0
	if err := cfg.validate(); err != ErrInvalidMaxDepth {
		t.Fatalf("validate() = %v, want ErrInvalidMaxDepth", err)
	}
}

func TestNewTraverserAcceptsDefaults(t *testing.T) {
	if _, err := NewTraverser(DefaultConfig()); err != nil {
		t.Fatalf("NewTraverser(DefaultConfig()) = %v, want nil", err)
	}
}

func TestResolveOneReusesCachedResponse(t *testing.T) {
	var hits int
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		hits++
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = []dns.RR{mustRR(t, "example.com. 300 IN A 192.0.2.10")}
		_ = w.WriteMsg(m)
	})
	cfg := DefaultConfig()
	cfg.DNSPort = port
	tr, err := NewTraverser(cfg)
	if err != nil {
		t.Fatalf("NewTraverser: %v", err)
	}

	q := NewQuery("example.com", dns.TypeA)
	bw := NewBailiwick(".")
	first := tr.resolveOne(context.Background(), addr, q, bw)
	second := tr.resolveOne(context.Background(), addr, q, bw)
	if first != second {
		t.Fatal("resolveOne should return the cached *DecodedResponse on the second call")
	}
	if hits != 1 {
		t.Fatalf("fixture server hit %d times, want exactly 1 (second call should be a cache hit)", hits)
	}
}

func TestRunReturnsErrMissingDomain(t *testing.T) {
	tr, err := NewTraverser(DefaultConfig())
	if err != nil {
		t.Fatalf("NewTraverser: %v", err)
	}
	if _, err := tr.Run(context.Background(), "", dns.TypeA); err != ErrMissingDomain {
		t.Fatalf("Run(\"\") = %v, want ErrMissingDomain", err)
	}
}

func TestRunUsesExplicitRootsWithoutDiscovery(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = []dns.RR{mustRR(t, "example.com. 300 IN A 192.0.2.10")}
		_ = w.WriteMsg(m)
	})
	cfg := DefaultConfig()
	cfg.DNSPort = port
	cfg.Timeout = time.Second
	cfg.Roots = []RootServer{{Name: "test-root.", IPs: []netip.Addr{addr}}}
	tr, err := NewTraverser(cfg)
	if err != nil {
		t.Fatalf("NewTraverser: %v", err)
	}

	forest, err := tr.Run(context.Background(), "example.com", dns.TypeA)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(forest) != 1 || forest[0].State != StateAnswered {
		t.Fatalf("forest = %+v, want a single ANSWERED root", forest)
	}
	if forest[0].dist[OutcomeAnswer] != 1 {
		t.Fatalf("dist = %v, want {ANSWER: 1}", forest[0].dist)
	}
}
