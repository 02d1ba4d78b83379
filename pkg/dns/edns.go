package dns

import (
	"github.com/miekg/dns"
)

// ServerUDPSize is the EDNS UDP payload size advertised in every response
// and upstream query carrying an OPT record (DNS Flag Day 2020 value). The
// client's advertised size is deliberately not echoed.
const ServerUDPSize = 1232

// ApplyEDNS mirrors the request's EDNS posture onto resp: an OPT record is
// present iff the request carried one, version 0, DO copied from the
// request, payload size fixed to ServerUDPSize, no extensions. Any OPT
// already in resp (copied from an upstream answer) is replaced.
func ApplyEDNS(req, resp *dns.Msg) {
	reqOpt := req.IsEdns0()
	if reqOpt == nil {
		stripOPT(resp)
		return
	}

	stripOPT(resp)
	resp.Extra = append(resp.Extra, newOPT(reqOpt.Do()))
}

// newOPT builds the server-side OPT record.
func newOPT(do bool) *dns.OPT {
	opt := &dns.OPT{
		Hdr: dns.RR_Header{
			Name:   ".",
			Rrtype: dns.TypeOPT,
		},
	}
	opt.SetUDPSize(ServerUDPSize)
	opt.SetVersion(0)
	if do {
		opt.SetDo()
	}
	return opt
}

// stripOPT removes OPT pseudo-records from the additional section.
func stripOPT(m *dns.Msg) {
	if len(m.Extra) == 0 {
		return
	}
	extra := m.Extra[:0]
	for _, rr := range m.Extra {
		if rr.Header().Rrtype == dns.TypeOPT {
			continue
		}
		extra = append(extra, rr)
	}
	m.Extra = extra
}
