package dnstraverse

import (
	"context"
	"math/rand"
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/panjf2000/ants/v2"
)

// discoverRoots resolves the set of RootServer candidates a Run should
// start from, per spec.md section 4.5: an explicit Config.Roots override
// wins outright; otherwise a single root is chosen via getARoot, or every
// root via findAllRoots when Config.AllRoots is set.
func (t *Traverser) discoverRoots(ctx context.Context) ([]RootServer, error) {
	if len(t.cfg.Roots) > 0 {
		return t.cfg.Roots, nil
	}
	if t.cfg.AllRoots {
		roots, err := t.findAllRoots(ctx)
		if err != nil || len(roots) == 0 {
			return compiledRootHints(), nil
		}
		return roots, nil
	}
	root, err := t.getARoot(ctx)
	if err != nil || len(root.IPs) == 0 {
		hints := compiledRootHints()
		if len(hints) == 0 {
			return nil, ErrNoRootsUsable
		}
		return hints[rand.Intn(len(hints)):][:1], nil
	}
	return []RootServer{root}, nil
}

// getARoot asks the local stub resolver for the root NS set, picks one
// letter at random, and resolves its own addresses.
func (t *Traverser) getARoot(ctx context.Context) (RootServer, error) {
	nss, err := net.DefaultResolver.LookupNS(ctx, ".")
	if err != nil || len(nss) == 0 {
		return RootServer{}, err
	}
	chosen := nss[rand.Intn(len(nss))]
	name := canonicalName(chosen.Host)
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, name)
	if err != nil {
		return RootServer{}, err
	}
	var ips []netip.Addr
	for _, a := range addrs {
		if ip, ok := netip.AddrFromSlice(a.IP); ok {
			ip = ip.Unmap()
			if ip.Is6() && !t.cfg.FollowAAAA {
				continue
			}
			ips = append(ips, ip)
		}
	}
	return RootServer{Name: name, IPs: ips}, nil
}

// findAllRoots queries one chosen root server directly for ". NS" to get
// the authoritative 13-letter root set, then resolves every target's
// addresses via the local stub resolver.
func (t *Traverser) findAllRoots(ctx context.Context) ([]RootServer, error) {
	seed, err := t.getARoot(ctx)
	if err != nil || len(seed.IPs) == 0 {
		return nil, err
	}

	m := new(dns.Msg)
	m.SetQuestion(".", dns.TypeNS)
	resp, err := t.exchange(ctx, m, seed.IPs[0])
	if err != nil || resp == nil {
		return nil, err
	}

	var names []string
	for _, rr := range resp.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			names = append(names, canonicalName(ns.Ns))
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	roots := make([]RootServer, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, name)
			if err != nil {
				roots[i] = RootServer{Name: name}
				return
			}
			var ips []netip.Addr
			for _, a := range addrs {
				if ip, ok := netip.AddrFromSlice(a.IP); ok {
					ip = ip.Unmap()
					if ip.Is6() && !t.cfg.FollowAAAA {
						continue
					}
					ips = append(ips, ip)
				}
			}
			roots[i] = RootServer{Name: name, IPs: ips}
		}(i, name)
	}
	wg.Wait()
	return roots, nil
}

// rootRTT is one probe result, used by OrderRoots to sort root candidates
// by reachability before a Run begins.
type rootRTT struct {
	root RootServer
	rtt  time.Duration
}

// OrderRoots probes every candidate's dial latency concurrently through a
// bounded goroutine pool and returns them sorted fastest-first, dropping
// any that fail to connect within cutoff. This and findAllRoots's
// per-name address lookups are the only places a Traverser uses
// concurrency: both are bootstrap I/O, not traversal (spec.md's concurrency
// non-goal governs the Referral tree itself, not these bootstrap steps).
func (t *Traverser) OrderRoots(ctx context.Context, roots []RootServer, cutoff time.Duration) []RootServer {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cutoff*2)
		defer cancel()
	}

	results := make([]rootRTT, len(roots))
	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(8, func(i interface{}) {
		defer wg.Done()
		idx := i.(int)
		results[idx] = rootRTT{root: roots[idx], rtt: t.probeRoot(ctx, roots[idx])}
	})
	if err != nil {
		for i := range roots {
			results[i] = rootRTT{root: roots[i], rtt: t.probeRoot(ctx, roots[i])}
		}
	} else {
		defer pool.Release()
		for i := range roots {
			wg.Add(1)
			_ = pool.Invoke(i)
		}
		wg.Wait()
	}

	sort.Slice(results, func(i, j int) bool { return results[i].rtt < results[j].rtt })
	var out []RootServer
	for _, r := range results {
		if r.rtt <= cutoff {
			out = append(out, r.root)
		}
	}
	return out
}

// probeRoot dials every address of root over TCP and returns the mean
// connect latency, or an hour-long sentinel if any dial fails.
func (t *Traverser) probeRoot(ctx context.Context, root RootServer) time.Duration {
	if len(root.IPs) == 0 {
		return time.Hour
	}
	var total time.Duration
	for _, addr := range root.IPs {
		network := "tcp4"
		if addr.Is6() {
			network = "tcp6"
		}
		start := time.Now()
		conn, err := t.cfg.Dialer.DialContext(ctx, network, netip.AddrPortFrom(addr, t.cfg.DNSPort).String())
		if err != nil {
			return time.Hour
		}
		total += time.Since(start)
		_ = conn.Close()
	}
	return total / time.Duration(len(root.IPs))
}
