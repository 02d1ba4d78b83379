// Package localzone classifies names that fall inside RFC 6303
// reverse-mapping zones or other reserved zones a local resolver should not
// leak to the public DNS.
package localzone

import "strings"

// Zones a local resolver is expected to answer itself (RFC 6303), plus the
// special-use names of RFC 6761 and mDNS.
var zones = []string{
	// IPv4
	"0.in-addr.arpa.",
	"127.in-addr.arpa.",
	"10.in-addr.arpa.",
	"16.172.in-addr.arpa.",
	"17.172.in-addr.arpa.",
	"18.172.in-addr.arpa.",
	"19.172.in-addr.arpa.",
	"20.172.in-addr.arpa.",
	"21.172.in-addr.arpa.",
	"22.172.in-addr.arpa.",
	"23.172.in-addr.arpa.",
	"24.172.in-addr.arpa.",
	"25.172.in-addr.arpa.",
	"26.172.in-addr.arpa.",
	"27.172.in-addr.arpa.",
	"28.172.in-addr.arpa.",
	"29.172.in-addr.arpa.",
	"30.172.in-addr.arpa.",
	"31.172.in-addr.arpa.",
	"168.192.in-addr.arpa.",
	"254.169.in-addr.arpa.",
	// IPv6 "this host" (::/128)
	"0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.ip6.arpa.",
	// IPv6 loopback (::1/128)
	"1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.ip6.arpa.",
	// IPv6 unique local (fc00::/7)
	"c.f.ip6.arpa.",
	"d.f.ip6.arpa.",
	// IPv6 link-local (fe80::/10)
	"8.e.f.ip6.arpa.",
	"9.e.f.ip6.arpa.",
	"a.e.f.ip6.arpa.",
	"b.e.f.ip6.arpa.",
	// IPv6 documentation (2001:db8::/32)
	"8.b.d.0.1.0.0.2.ip6.arpa.",
	// Reserved names
	"localhost.",
	"invalid.",
	"test.",
	"example.",
	"local.",
}

// Find returns the longest zone enclosing name on a label boundary, or ""
// when the name is not in any local zone. The name must be canonical
// (lowercase, dot-terminated).
func Find(name string) string {
	best := ""
	for _, zone := range zones {
		if name != zone && !strings.HasSuffix(name, "."+zone) {
			continue
		}
		if len(zone) > len(best) {
			best = zone
		}
	}
	return best
}

// Contains reports whether name falls inside any local zone.
func Contains(name string) bool {
	return Find(name) != ""
}
