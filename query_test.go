package dnstraverse

import (
	"testing"

	"github.com/miekg/dns"
)

func TestNewQueryNormalizesName(t *testing.T) {
	q := NewQuery("WWW.Example.COM", dns.TypeA)
	if q.Name != "www.example.com." {
		t.Fatalf("Name = %q, want %q", q.Name, "www.example.com.")
	}
	if q.Class != dns.ClassINET {
		t.Fatalf("Class = %d, want ClassINET", q.Class)
	}
}

func TestQueryMatches(t *testing.T) {
	q := NewQuery("example.com", dns.TypeA)
	cases := []struct {
		name  string
		class uint16
		rtype uint16
		want  bool
	}{
		{"example.com.", dns.ClassINET, dns.TypeA, true},
		{"EXAMPLE.COM", dns.ClassINET, dns.TypeA, true},
		{"example.com.", dns.ClassINET, dns.TypeAAAA, false},
		{"example.com.", dns.ClassINET, dns.TypeANY, true},
		{"other.com.", dns.ClassINET, dns.TypeA, false},
		{"example.com.", dns.ClassCHAOS, dns.TypeA, false},
	}
	for _, c := range cases {
		if got := q.Matches(c.name, c.class, c.rtype); got != c.want {
			t.Errorf("Matches(%q, %d, %d) = %v, want %v", c.name, c.class, c.rtype, got, c.want)
		}
	}
}

func TestBailiwickContains(t *testing.T) {
	bw := NewBailiwick("example.com")
	cases := []struct {
		name string
		want bool
	}{
		{"example.com.", true},
		{"www.example.com.", true},
		{"EXAMPLE.COM.", true},
		{"notexample.com.", false},
		{"com.", false},
	}
	for _, c := range cases {
		if got := bw.Contains(c.name); got != c.want {
			t.Errorf("Contains(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestRootBailiwickContainsEverything(t *testing.T) {
	bw := NewBailiwick(".")
	for _, name := range []string{".", "com.", "example.com.", "www.example.com."} {
		if !bw.Contains(name) {
			t.Errorf("root bailiwick should contain %q", name)
		}
	}
}
