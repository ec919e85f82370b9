package dnstraverse

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// startFixtureServer runs a UDP DNS server on loopback answering with
// whatever handler produces, the "recorded-response fixture harness"
// spec.md section 8's end-to-end scenarios call for.
func startFixtureServer(t *testing.T, handler dns.HandlerFunc) (netip.Addr, uint16) {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	addrPort := pc.LocalAddr().(*net.UDPAddr).AddrPort()
	return addrPort.Addr(), addrPort.Port()
}

func testTraverser(t *testing.T, port uint16) *Traverser {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DNSPort = port
	cfg.Timeout = 2 * time.Second
	cfg.Retries = 0
	tr, err := NewTraverser(cfg)
	if err != nil {
		t.Fatalf("NewTraverser: %v", err)
	}
	return tr
}

func TestDecodeClassifiesAnswer(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = []dns.RR{mustRR(t, "example.com. 300 IN A 192.0.2.10")}
		_ = w.WriteMsg(m)
	})

	tr := testTraverser(t, port)
	dr := tr.decode(context.Background(), addr, NewQuery("example.com", dns.TypeA), NewBailiwick("."))
	if dr.Outcome != OutcomeAnswer {
		t.Fatalf("Outcome = %v, want ANSWER", dr.Outcome)
	}
}

func TestDecodeClassifiesCNAMEOnlyAnswer(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = []dns.RR{mustRR(t, "www.example.com. 300 IN CNAME w.example.net.")}
		_ = w.WriteMsg(m)
	})

	tr := testTraverser(t, port)
	dr := tr.decode(context.Background(), addr, NewQuery("www.example.com", dns.TypeA), NewBailiwick("example.com"))
	if dr.Outcome != OutcomeAnswer {
		t.Fatalf("Outcome = %v, want ANSWER for a CNAME-only response", dr.Outcome)
	}
	if dr.FinalName != "w.example.net." {
		t.Fatalf("FinalName = %q, want w.example.net.", dr.FinalName)
	}
}

func TestDecodeClassifiesReferral(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Ns = []dns.RR{mustRR(t, "example.com. 3600 IN NS ns1.example.com.")}
		m.Extra = []dns.RR{mustRR(t, "ns1.example.com. 3600 IN A 192.0.2.1")}
		_ = w.WriteMsg(m)
	})

	tr := testTraverser(t, port)
	dr := tr.decode(context.Background(), addr, NewQuery("example.com", dns.TypeA), NewBailiwick("."))
	if dr.Outcome != OutcomeReferral {
		t.Fatalf("Outcome = %v, want REFERRAL", dr.Outcome)
	}
}

func TestDecodeClassifiesNXDomain(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		_ = w.WriteMsg(m)
	})

	tr := testTraverser(t, port)
	dr := tr.decode(context.Background(), addr, NewQuery("nope.example.com", dns.TypeA), NewBailiwick("."))
	if dr.Outcome != OutcomeNXDomain {
		t.Fatalf("Outcome = %v, want NXDOMAIN", dr.Outcome)
	}
}

func TestDecodeClassifiesNodata(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Ns = []dns.RR{mustRR(t, "example.com. 3600 IN SOA a.example.com. hostmaster.example.com. 1 2 3 4 5")}
		_ = w.WriteMsg(m)
	})

	tr := testTraverser(t, port)
	dr := tr.decode(context.Background(), addr, NewQuery("example.com", dns.TypeMX), NewBailiwick("."))
	if dr.Outcome != OutcomeNodata {
		t.Fatalf("Outcome = %v, want NODATA", dr.Outcome)
	}
}

func TestDecodeClassifiesTimeout(t *testing.T) {
	// Nothing listening on this address: the exchange should fail rather
	// than hang, and decode must classify it as TIMEOUT, or as OTHER_ERROR
	// where the local network rejects the send outright.
	addr := netip.MustParseAddr("192.0.2.254")
	cfg := DefaultConfig()
	cfg.Timeout = 200 * time.Millisecond
	cfg.Retries = 0
	cfg.AllowTCP = false
	tr, err := NewTraverser(cfg)
	if err != nil {
		t.Fatalf("NewTraverser: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dr := tr.decode(ctx, addr, NewQuery("example.com", dns.TypeA), NewBailiwick("."))
	if dr.Outcome != OutcomeTimeout && dr.Outcome != OutcomeOtherError {
		t.Fatalf("Outcome = %v, want TIMEOUT or OTHER_ERROR for an unreachable server", dr.Outcome)
	}
}

func TestDecodeClassifiesMixedReferralAsLame(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Ns = []dns.RR{
			mustRR(t, "example.com. 3600 IN NS ns1.example.com."),
			mustRR(t, "attacker.example. 3600 IN NS evil.attacker.example."),
		}
		m.Extra = []dns.RR{mustRR(t, "ns1.example.com. 3600 IN A 192.0.2.1")}
		_ = w.WriteMsg(m)
	})

	tr := testTraverser(t, port)
	dr := tr.decode(context.Background(), addr, NewQuery("example.com", dns.TypeA), NewBailiwick("example.com"))
	if dr.Outcome != OutcomeReferralLame {
		t.Fatalf("Outcome = %v, want REFERRAL_LAME for a mixed in-bailiwick/lame NS set", dr.Outcome)
	}
}

func TestDecodeClassifiesAllLameReferralAsOtherError(t *testing.T) {
	addr, port := startFixtureServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Ns = []dns.RR{mustRR(t, "attacker.example. 3600 IN NS evil.attacker.example.")}
		_ = w.WriteMsg(m)
	})

	tr := testTraverser(t, port)
	dr := tr.decode(context.Background(), addr, NewQuery("example.com", dns.TypeA), NewBailiwick("example.com"))
	if dr.Outcome != OutcomeOtherError {
		t.Fatalf("Outcome = %v, want OTHER_ERROR when every NS is lame", dr.Outcome)
	}
}

func TestPartitionNSSplitsByBailiwick(t *testing.T) {
	ns := []dns.RR{
		mustRR(t, "example.com. 3600 IN NS ns1.example.com."),
		mustRR(t, "attacker.example. 3600 IN NS evil.attacker.example."),
	}
	inBW, lame := partitionNS(ns, NewBailiwick("example.com"))
	if len(inBW) != 1 || len(lame) != 1 {
		t.Fatalf("partitionNS() inBW=%d lame=%d, want 1/1", len(inBW), len(lame))
	}
}
