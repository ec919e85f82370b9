// Command dnstraverse explores, from one or more DNS root servers, every
// distinct path by which a recursive resolver could arrive at an
// authoritative answer for a query, and reports the resulting outcome
// distribution.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"sort"
	"time"

	"github.com/MinnieMouse/dnstraverse"
	"github.com/miekg/dns"
)

type cliFlags struct {
	qtype          string
	rootServer     string
	allRootServers bool
	udpSize        uint
	allowTCP       bool
	alwaysTCP      bool
	maxDepth       int
	retries        int
	followAAAA     bool
	rootAAAA       bool
	fast           bool
	showProgress   bool
	showResolves   bool
	showServers    bool
	showAllStats   bool
	verbose        bool
	debug          bool
	configPath     string
	geoipDB        string
	exportDOT      string
}

func parseFlags(args []string) (*cliFlags, string, error) {
	fs := flag.NewFlagSet("dnstraverse", flag.ContinueOnError)
	f := &cliFlags{}
	fs.StringVar(&f.qtype, "type", "A", "query type")
	fs.StringVar(&f.rootServer, "root-server", "", "explicit root server name to start from")
	fs.BoolVar(&f.allRootServers, "all-root-servers", false, "traverse from every root server, not just one")
	fs.UintVar(&f.udpSize, "udp-size", 1232, "EDNS0 UDP payload size (512 disables EDNS0)")
	fs.BoolVar(&f.allowTCP, "allow-tcp", true, "allow falling back to TCP on truncation or UDP failure")
	fs.BoolVar(&f.alwaysTCP, "always-tcp", false, "always use TCP (requires allow-tcp)")
	fs.IntVar(&f.maxDepth, "max-depth", 20, "maximum referral chain depth")
	fs.IntVar(&f.retries, "retries", 2, "retries per server exchange")
	fs.BoolVar(&f.followAAAA, "follow-aaaa", true, "resolve AAAA for bare NS targets and keep IPv6 addresses of discovered roots (off if -root-aaaa is off)")
	fs.BoolVar(&f.rootAAAA, "root-aaaa", true, "keep IPv6 addresses of discovered roots and resolve AAAA for bare NS targets (off if -follow-aaaa is off)")
	fs.BoolVar(&f.fast, "fast", true, "skip re-expanding an already-seen (server, query, bailiwick)")
	fs.BoolVar(&f.showProgress, "show-progress", false, "print a line per Referral lifecycle transition")
	fs.BoolVar(&f.showResolves, "show-resolves", false, "print a line per NS-address side-resolution")
	fs.BoolVar(&f.showServers, "show-servers", false, "print the server inventory after traversal")
	fs.BoolVar(&f.showAllStats, "show-all-stats", false, "print cache hit ratio and entry count")
	fs.BoolVar(&f.verbose, "verbose", false, "log every Referral lifecycle event to stderr")
	fs.BoolVar(&f.debug, "debug", false, "same as -verbose")
	fs.StringVar(&f.configPath, "config", "", "YAML config file overlay")
	fs.StringVar(&f.geoipDB, "geoip-db", "", "MaxMind City database for server inventory annotation")
	fs.StringVar(&f.exportDOT, "export-dot", "", "write the completed Referral forest as Graphviz DOT to this path")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	if fs.NArg() != 1 {
		return nil, "", dnstraverse.ErrMissingDomain
	}
	return f, fs.Arg(0), nil
}

func buildConfig(f *cliFlags) (dnstraverse.Config, error) {
	cfg := dnstraverse.DefaultConfig()
	if f.configPath != "" {
		fc, err := dnstraverse.LoadFileConfig(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = fc.Apply(cfg)
		if f.geoipDB == "" {
			f.geoipDB = fc.GeoIPDB
		}
		if f.exportDOT == "" {
			f.exportDOT = fc.ExportDOT
		}
	}
	cfg.UDPSize = uint16(f.udpSize)
	cfg.AllowTCP = f.allowTCP
	cfg.AlwaysTCP = f.alwaysTCP
	cfg.MaxDepth = f.maxDepth
	cfg.Retries = f.retries
	cfg.FollowAAAA = f.followAAAA && f.rootAAAA
	cfg.Fast = f.fast
	cfg.AllRoots = f.allRootServers

	if f.verbose || f.debug {
		cfg.LogWriter = os.Stderr
	}
	if f.showProgress {
		cfg.OnMain = func(stage string, r *dnstraverse.Referral) {
			fmt.Printf("%s refid=%s server=%s query=%s bailiwick=%s state=%s\n", stage, r.RefID, r.ServerName, r.Query, r.Bailiwick, r.State)
		}
	}
	if f.showResolves {
		cfg.OnResolve = func(stage string, r *dnstraverse.Referral) {
			fmt.Printf("resolve %s server=%s\n", stage, r.ServerName)
		}
	}
	return cfg, nil
}

func run() int {
	f, domain, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Println(err)
		return 2
	}

	qtype, ok := dns.StringToType[f.qtype]
	if !ok {
		log.Printf("unknown query type %q", f.qtype)
		return 2
	}

	cfg, err := buildConfig(f)
	if err != nil {
		log.Println(err)
		return 2
	}
	if f.rootServer != "" {
		root, ok := dnstraverse.LookupRootHint(f.rootServer)
		if !ok {
			addrs, lookupErr := net.DefaultResolver.LookupIPAddr(context.Background(), f.rootServer)
			if lookupErr != nil {
				log.Println(lookupErr)
				return 2
			}
			ips := make([]netip.Addr, 0, len(addrs))
			for _, a := range addrs {
				if ip, ok := netip.AddrFromSlice(a.IP); ok {
					ips = append(ips, ip.Unmap())
				}
			}
			root = dnstraverse.RootServer{Name: f.rootServer, IPs: ips}
		}
		cfg.Roots = []dnstraverse.RootServer{root}
	}

	t, err := dnstraverse.NewTraverser(cfg)
	if err != nil {
		log.Println(err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	forest, err := t.Run(ctx, domain, qtype)
	if err != nil {
		log.Println(err)
		if err == dnstraverse.ErrNoRootsUsable {
			return 2
		}
		return 1
	}

	renderForest(forest)
	renderDistribution(forest)
	if f.showServers {
		renderServers(t, f.geoipDB)
	}
	if f.showAllStats {
		if rc, ok := cfg.Cache.(*dnstraverse.ResponseCache); ok {
			fmt.Printf("\ncache entries=%d hit_ratio=%.1f%%\n", rc.Entries(), rc.HitRatio())
		}
	}
	if f.exportDOT != "" {
		if err := writeDOT(forest, f.exportDOT); err != nil {
			log.Println(err)
		}
	}
	return 0
}

func renderForest(forest []*dnstraverse.Referral) {
	var walk func(r *dnstraverse.Referral)
	walk = func(r *dnstraverse.Referral) {
		fmt.Printf("%s %s %v %s %s\n", r.RefID, r.ServerName, r.ServerIPs, r.Bailiwick, r.State)
		for _, kid := range r.Children {
			walk(kid)
		}
	}
	for _, root := range forest {
		walk(root)
	}
}

func renderDistribution(forest []*dnstraverse.Referral) {
	total := map[dnstraverse.Outcome]float64{}
	for _, root := range forest {
		for o, p := range root.Distribution() {
			total[o] += p / float64(len(forest))
		}
	}
	var outcomes []string
	for o := range total {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	fmt.Println("\noutcome distribution:")
	for _, o := range outcomes {
		fmt.Printf("  %-16s %.4f\n", o, total[dnstraverse.Outcome(o)])
	}
}

func renderServers(t *dnstraverse.Traverser, geoipDB string) {
	var geo *dnstraverse.GeoIP
	if geoipDB != "" {
		var err error
		geo, err = dnstraverse.OpenGeoIP(geoipDB)
		if err != nil {
			log.Println(err)
		} else {
			defer geo.Close()
		}
	}
	fmt.Println("\nservers encountered:")
	for _, rec := range geo.Annotate(t.Servers()) {
		if rec.Location.Country != "" {
			fmt.Printf("  %-32s %-20s %s\n", rec.Name, rec.Addr, rec.Location.Country)
		} else {
			fmt.Printf("  %-32s %-20s\n", rec.Name, rec.Addr)
		}
	}
}

func writeDOT(forest []*dnstraverse.Referral, path string) error {
	data, err := dnstraverse.ExportDOT(forest)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func main() {
	os.Exit(run())
}
