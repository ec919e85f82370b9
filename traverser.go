package dnstraverse

import (
	"context"
	"io"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// RootServer names one root-server candidate and the addresses discovered
// (or supplied) for it.
type RootServer struct {
	Name string
	IPs  []netip.Addr
}

// ProgressFunc is notified of Referral lifecycle transitions. stage is one
// of "start", "new_referral_set", "answer", "answer_fast" on the main
// callback, or "start", "answer_fast" on the resolve callback used while
// resolving an NS target's own address (spec.md section 6).
type ProgressFunc func(stage string, r *Referral)

// Config parameterizes a Traverser. Zero value is invalid; use
// DefaultConfig as a starting point.
type Config struct {
	Dialer     proxy.ContextDialer
	DNSPort    uint16
	Timeout    time.Duration
	Retries    int
	AllowTCP   bool
	AlwaysTCP  bool
	UDPSize    uint16
	FollowAAAA bool

	MaxDepth int
	Fast     bool
	AllRoots bool
	Roots    []RootServer // explicit override; skips discovery when set

	Cache     Cacher
	OnMain    ProgressFunc
	OnResolve ProgressFunc
	LogWriter io.Writer
}

// DefaultConfig returns sane defaults matching the CLI's flag defaults,
// except that Fast is off here while the CLI's --fast defaults to on.
func DefaultConfig() Config {
	return Config{
		Dialer:     &net.Dialer{},
		DNSPort:    53,
		Timeout:    2 * time.Second,
		Retries:    2,
		AllowTCP:   true,
		AlwaysTCP:  false,
		UDPSize:    1232,
		FollowAAAA: true,
		MaxDepth:   20,
		Cache:      NewResponseCache(),
	}
}

// Traverser runs one or more Referral trees against Config. It is not safe
// for concurrent use: traversal is deliberately single-threaded per
// spec.md's concurrency non-goal, so internal bookkeeping (the fingerprint
// index, the resolving-stack, the cache) needs no locking of its own beyond
// what disable.go's transport-degradation flags require.
type Traverser struct {
	cfg Config

	mu      sync.RWMutex
	useUDP  bool
	useIPv6 bool
	roots   []netip.Addr // flattened pool, pruned by maybeDisableIPv6

	cache        Cacher
	fingerprints map[string]*Referral
	resolving    map[string]struct{}
	servers      map[string]map[netip.Addr]struct{}
	log          logContext
}

// NewTraverser validates cfg and returns a ready Traverser.
func NewTraverser(cfg Config) (*Traverser, error) {
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	if cfg.Cache == nil {
		cfg.Cache = NewResponseCache()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Traverser{
		cfg:          cfg,
		useUDP:       true,
		useIPv6:      true,
		cache:        cfg.Cache,
		fingerprints: make(map[string]*Referral),
		resolving:    make(map[string]struct{}),
		servers:      make(map[string]map[netip.Addr]struct{}),
		log:          newLogContext(cfg.LogWriter),
	}, nil
}

// Run discovers (or uses the configured) root servers, builds one top-level
// Referral per root, expands each to completion, and returns the resulting
// forest (spec.md section 4.5's "Run" operation).
func (t *Traverser) Run(ctx context.Context, name string, qtype uint16) ([]*Referral, error) {
	if name == "" {
		return nil, ErrMissingDomain
	}
	roots, err := t.discoverRoots(ctx)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, ErrNoRootsUsable
	}

	for _, root := range roots {
		t.roots = append(t.roots, root.IPs...)
	}

	q := NewQuery(name, qtype)
	forest := make([]*Referral, 0, len(roots))
	for i, root := range roots {
		r := newReferral(nil, netip.Addr{}, root.Name, root.IPs, q, NewBailiwick("."), 0)
		r.fromRoot = r
		r.RefID = strconv.Itoa(i + 1)
		forest = append(forest, r)
		t.expand(ctx, r)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return forest, nil
}

// resolveOne consults the Response Cache before issuing a fresh exchange,
// and stores whatever decode produces, success or failure alike -- a
// negative result for (server, query, bailiwick) is exactly as reusable
// within one run as a positive one (spec.md section 4.3).
func (t *Traverser) resolveOne(ctx context.Context, server netip.Addr, q Query, bw Bailiwick) *DecodedResponse {
	if dr := t.cache.Get(server, q, bw); dr != nil {
		return dr
	}
	dr := t.decode(ctx, server, q, bw)
	t.cache.Set(server, q, bw, dr)
	return dr
}

func (t *Traverser) notifyMain(stage string, r *Referral) {
	t.log.logReferral(r, stage)
	if t.cfg.OnMain != nil {
		t.cfg.OnMain(stage, r)
	}
}

func (t *Traverser) notifyResolve(stage string, r *Referral) {
	t.log.logReferral(r, "resolve:"+stage)
	if t.cfg.OnResolve != nil {
		t.cfg.OnResolve(stage, r)
	}
}

// recordServer remembers every address ever seen for a server name, across
// the whole run, for reporting (spec.md section 6's server inventory).
func (t *Traverser) recordServer(name string, ips []netip.Addr) {
	set, ok := t.servers[name]
	if !ok {
		set = make(map[netip.Addr]struct{})
		t.servers[name] = set
	}
	for _, ip := range ips {
		set[ip] = struct{}{}
	}
}

// Servers returns every server name encountered during Run, mapped to the
// distinct addresses seen for it.
func (t *Traverser) Servers() map[string][]netip.Addr {
	out := make(map[string][]netip.Addr, len(t.servers))
	for name, set := range t.servers {
		addrs := make([]netip.Addr, 0, len(set))
		for a := range set {
			addrs = append(addrs, a)
		}
		out[name] = addrs
	}
	return out
}
