// Package dns contains the request-handling pipeline: classification
// against the blocklist and local-zone policy, upstream forwarding,
// response construction, and the UDP/TCP server frontend.
package dns

import (
	"context"
	"net"
	"strconv"

	"advoid/pkg/blocklist"
	"advoid/pkg/decision"
	"advoid/pkg/event"
	"advoid/pkg/localzone"
	"advoid/pkg/logging"
	"advoid/pkg/telemetry"
	"advoid/pkg/upstream"

	"github.com/miekg/dns"
)

// Exchanger forwards a query to the upstream resolver. *upstream.Client is
// the production implementation.
type Exchanger interface {
	Exchange(ctx context.Context, q *dns.Msg) (*dns.Msg, error)
}

var _ Exchanger = (*upstream.Client)(nil)

// Handler runs the per-query state machine. One instance serves all
// requests; every field is read-only after wiring except the decision
// cache, which is internally synchronised.
type Handler struct {
	Blocklist      *blocklist.List
	Decisions      *decision.Cache
	Upstream       Exchanger
	Sink           event.Sink
	Metrics        *telemetry.Metrics
	Logger         *logging.Logger
	BlockLocalZone bool
}

// NewHandler creates a handler with a null sink and noop metrics; the
// caller wires the real collaborators before serving.
func NewHandler() *Handler {
	return &Handler{
		Sink:           event.NullSink{},
		Metrics:        telemetry.NoopMetrics(),
		Logger:         logging.NewDefault(),
		BlockLocalZone: true,
	}
}

// SetSink wires the event sink.
func (h *Handler) SetSink(s event.Sink) {
	h.Sink = s
}

// SetMetrics wires the metrics collector.
func (h *Handler) SetMetrics(m *telemetry.Metrics) {
	h.Metrics = m
}

// SetLogger wires the logger.
func (h *Handler) SetLogger(l *logging.Logger) {
	h.Logger = l
}

// writeMsg writes a DNS message to the response writer. A failed write
// means the client went away; there is no retry.
func (h *Handler) writeMsg(w dns.ResponseWriter, msg *dns.Msg) {
	if err := w.WriteMsg(msg); err != nil {
		h.Logger.Warn("Failed to write response", "client", remoteAddr(w), "error", err)
	}
}

// ServeDNS handles one query end to end.
func (h *Handler) ServeDNS(ctx context.Context, w dns.ResponseWriter, r *dns.Msg) {
	if len(r.Question) == 0 {
		h.writeMsg(w, FormatError(r))
		return
	}
	if r.Opcode != dns.OpcodeQuery {
		h.writeMsg(w, NotImplemented(r))
		return
	}

	question := r.Question[0]
	name := dns.CanonicalName(question.Name)

	h.Metrics.RequestsTotal.Add(ctx, 1)

	reqEv := event.NewRequestEvent(remoteAddr(w), name, question.Qclass, question.Qtype)
	h.Sink.SendRequest(reqEv)

	msg, outcome := h.resolve(ctx, r, name, question)
	ApplyEDNS(r, msg)

	h.Sink.SendResponse(event.NewResponseEvent(reqEv.ID, outcome, msg.Rcode, len(msg.Answer)))
	h.writeMsg(w, msg)
}

// resolve runs the classification gates and builds the response.
func (h *Handler) resolve(ctx context.Context, r *dns.Msg, name string, question dns.Question) (*dns.Msg, event.Outcome) {
	if h.BlockLocalZone {
		if zone := localzone.Find(name); zone != "" {
			if name == zone && (question.Qtype == dns.TypeSOA || question.Qtype == dns.TypeNS) {
				h.Logger.Debug("Serving local zone apex", "zone", zone, "type", dnsTypeLabel(question.Qtype))
				h.Metrics.RequestsBlocked.Add(ctx, 1)
				return ApexAnswer(r, zone, question.Qtype), event.OutcomeBlocked
			}
			if question.Qtype == dns.TypePTR {
				h.Logger.Debug("Blocking local zone query", "domain", name, "zone", zone)
				h.Metrics.RequestsBlocked.Add(ctx, 1)
				return SyntheticNXDomain(r, zone), event.OutcomeBlocked
			}
		}
	}

	if h.Decisions.Classify(ctx, name, h.Blocklist) == decision.Block {
		h.Logger.Debug("Blocking listed domain", "domain", name)
		h.Metrics.RequestsBlocked.Add(ctx, 1)
		return SyntheticNXDomain(r, ""), event.OutcomeBlocked
	}

	h.Metrics.RequestsForwarded.Add(ctx, 1)

	up, err := h.forward(ctx, r, name, question)
	if err != nil {
		h.Logger.Warn("Upstream query failed",
			"domain", name,
			"type", dnsTypeLabel(question.Qtype),
			"error", err,
		)
		return ServerFailure(r), event.OutcomeError
	}

	return ForwardedResponse(r, up), event.OutcomeForwarded
}

// forward builds the upstream query. The client's RD bit carries through,
// and when the client spoke EDNS the upstream query does too, with the
// client's DO bit so signature records come back when requested.
func (h *Handler) forward(ctx context.Context, r *dns.Msg, name string, question dns.Question) (*dns.Msg, error) {
	q := new(dns.Msg)
	q.SetQuestion(name, question.Qtype)
	q.Question[0].Qclass = question.Qclass
	q.RecursionDesired = r.RecursionDesired

	if opt := r.IsEdns0(); opt != nil {
		q.Extra = append(q.Extra, newOPT(opt.Do()))
	}

	return h.Upstream.Exchange(ctx, q)
}

// remoteAddr renders the client socket address.
func remoteAddr(w dns.ResponseWriter) string {
	if addr := w.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// clientIP extracts just the IP portion of the client address.
func clientIP(w dns.ResponseWriter) string {
	addr := remoteAddr(w)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// dnsTypeLabel returns a readable label for the query type, falling back to
// TYPE#### per RFC 3597 when unknown.
func dnsTypeLabel(qtype uint16) string {
	if label := dns.TypeToString[qtype]; label != "" {
		return label
	}
	return "TYPE" + strconv.FormatUint(uint64(qtype), 10)
}
