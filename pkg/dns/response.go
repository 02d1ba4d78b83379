package dns

import (
	"github.com/miekg/dns"
)

// Synthetic SOA constants. The MNAME/RNAME are stable placeholders; the
// minimum field doubles as the negative-cache TTL.
const (
	soaMname   = "ns.advoid."
	soaRname   = "hostmaster.advoid."
	soaSerial  = 1
	soaRefresh = 3600
	soaRetry   = 1800
	soaExpire  = 604800
	soaMinimum = 3600
	soaTTL     = 3600

	// fallbackZone owns the synthetic SOA for names blocked by list rather
	// than by local-zone policy.
	fallbackZone = "advoid."
)

// soaRecord builds the synthetic SOA for zone.
func soaRecord(zone string) *dns.SOA {
	return &dns.SOA{
		Hdr: dns.RR_Header{
			Name:   zone,
			Rrtype: dns.TypeSOA,
			Class:  dns.ClassINET,
			Ttl:    soaTTL,
		},
		Ns:      soaMname,
		Mbox:    soaRname,
		Serial:  soaSerial,
		Refresh: soaRefresh,
		Retry:   soaRetry,
		Expire:  soaExpire,
		Minttl:  soaMinimum,
	}
}

// nsRecord builds the synthetic NS for zone.
func nsRecord(zone string) *dns.NS {
	return &dns.NS{
		Hdr: dns.RR_Header{
			Name:   zone,
			Rrtype: dns.TypeNS,
			Class:  dns.ClassINET,
			Ttl:    soaTTL,
		},
		Ns: soaMname,
	}
}

// SyntheticNXDomain answers a blocked query: NXDOMAIN, authoritative,
// recursion available, the enclosing zone's SOA in the authority section,
// answer and additional sections empty. zone may be empty for list blocks.
func SyntheticNXDomain(req *dns.Msg, zone string) *dns.Msg {
	if zone == "" {
		zone = fallbackZone
	}

	msg := new(dns.Msg)
	msg.SetRcode(req, dns.RcodeNameError)
	msg.Authoritative = true
	msg.RecursionAvailable = true
	msg.Ns = []dns.RR{soaRecord(zone)}
	return msg
}

// ApexAnswer serves SOA and NS queries at the apex of a local zone with the
// synthetic zone records rather than denying the zone's existence.
func ApexAnswer(req *dns.Msg, zone string, qtype uint16) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetReply(req)
	msg.Authoritative = true
	msg.RecursionAvailable = true

	switch qtype {
	case dns.TypeNS:
		msg.Answer = []dns.RR{nsRecord(zone)}
	default:
		msg.Answer = []dns.RR{soaRecord(zone)}
	}
	return msg
}

// ForwardedResponse relays an upstream answer to the client under the
// request's ID. RCODE, RA, and AA come from the upstream; every section is
// copied through, signature records included. The upstream's OPT is not
// copied -- EDNS on the client-facing response is the server's own policy.
func ForwardedResponse(req, up *dns.Msg) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetRcode(req, up.Rcode)
	msg.RecursionAvailable = up.RecursionAvailable
	msg.Authoritative = up.Authoritative

	msg.Answer = append(msg.Answer, up.Answer...)
	msg.Ns = append(msg.Ns, up.Ns...)
	for _, rr := range up.Extra {
		if rr.Header().Rrtype == dns.TypeOPT {
			continue
		}
		msg.Extra = append(msg.Extra, rr)
	}
	return msg
}

// ServerFailure maps an upstream error to SERVFAIL. Built from the request
// so the ID round-trips.
func ServerFailure(req *dns.Msg) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetRcode(req, dns.RcodeServerFailure)
	msg.RecursionAvailable = true
	return msg
}

// NotImplemented answers opcodes the resolver does not serve.
func NotImplemented(req *dns.Msg) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetRcode(req, dns.RcodeNotImplemented)
	return msg
}

// FormatError rejects a query with no question section.
func FormatError(req *dns.Msg) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetRcode(req, dns.RcodeFormatError)
	return msg
}
