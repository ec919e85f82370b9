package dnstraverse

import (
	"net/netip"

	"github.com/oschwald/geoip2-golang"
)

// GeoLocation is the enrichment attached to one server address in the
// inventory report when a MaxMind City database is supplied (--geoip-db).
type GeoLocation struct {
	Country string
}

// GeoIP annotates server addresses with their country using a MaxMind City
// database. It is
// read-only enrichment of the server inventory: it never influences the
// Referral tree or outcome distribution (SPEC_FULL.md section 7).
type GeoIP struct {
	reader *geoip2.Reader
}

// OpenGeoIP opens a MaxMind database at path for later lookups.
func OpenGeoIP(path string) (*GeoIP, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{reader: r}, nil
}

// Close releases the underlying mmap'd database.
func (g *GeoIP) Close() error {
	if g == nil || g.reader == nil {
		return nil
	}
	return g.reader.Close()
}

// Lookup returns the best-effort location for addr, or the zero value if
// the database has no record for it.
func (g *GeoIP) Lookup(addr netip.Addr) GeoLocation {
	if g == nil || g.reader == nil {
		return GeoLocation{}
	}
	city, err := g.reader.City(addr.AsSlice())
	if err != nil {
		return GeoLocation{}
	}
	return GeoLocation{Country: city.Country.IsoCode}
}

// Annotate enriches a server inventory (name -> addresses) into a flat
// per-address report, the shape --show-servers renders.
func (g *GeoIP) Annotate(servers map[string][]netip.Addr) []ServerRecord {
	var out []ServerRecord
	for name, addrs := range servers {
		for _, addr := range addrs {
			rec := ServerRecord{Name: name, Addr: addr}
			if g != nil {
				rec.Location = g.Lookup(addr)
			}
			out = append(out, rec)
		}
	}
	return out
}

// ServerRecord is one row of the server inventory report.
type ServerRecord struct {
	Name     string
	Addr     netip.Addr
	Location GeoLocation
}
