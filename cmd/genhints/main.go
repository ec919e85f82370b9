package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/miekg/dns"
)

//go:embed roothints.go.tmpl
var roothintsgotmpl string

// RootHint is one root letter's name and addresses, grouped for the
// compiledRootHints table in roothints.go.
type RootHint struct {
	Name string
	IPs  []netip.Addr
}

type hintsData struct {
	Hints []RootHint
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	resp, err := http.Get("https://www.internic.net/domain/named.root")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	byName := map[string][]netip.Addr{}
	var order []string
	zp := dns.NewZoneParser(bytes.NewReader(body), "", "")
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		name := strings.ToLower(rr.Header().Name)
		switch rr := rr.(type) {
		case *dns.A:
			if ip, ok := netip.AddrFromSlice(rr.A); ok {
				if _, seen := byName[name]; !seen {
					order = append(order, name)
				}
				byName[name] = append(byName[name], ip.Unmap())
			}
		case *dns.AAAA:
			if ip, ok := netip.AddrFromSlice(rr.AAAA); ok {
				if _, seen := byName[name]; !seen {
					order = append(order, name)
				}
				byName[name] = append(byName[name], ip)
			}
		}
	}
	if err := zp.Err(); err != nil {
		return err
	}

	sort.Strings(order)
	data := hintsData{}
	for _, name := range order {
		ips := byName[name]
		sort.Slice(ips, func(i, j int) bool { return ips[i].Less(ips[j]) })
		data.Hints = append(data.Hints, RootHint{Name: name, IPs: ips})
	}

	var out *os.File
	if len(os.Args) < 2 {
		out = os.Stdout
	} else {
		if out, err = os.Create(os.Args[1]); err != nil {
			return err
		}
		defer out.Close()
	}

	t, err := template.New("").Parse(roothintsgotmpl)
	if err != nil {
		return err
	}
	return t.Execute(out, data)
}
