// Package upstream wraps the stub DNS client the resolver forwards allowed
// queries through. One Client is shared by all in-flight requests.
package upstream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"advoid/pkg/logging"

	"github.com/miekg/dns"
)

// DefaultTimeout bounds a single upstream exchange.
const DefaultTimeout = 2 * time.Second

// Client forwards queries to a single configured upstream resolver over
// UDP, retrying once over TCP when the upstream truncates.
type Client struct {
	addr    string
	timeout time.Duration
	logger  *logging.Logger

	udpPool sync.Pool
}

// New creates an upstream client for addr (host:port; :53 is appended when
// the port is missing).
func New(addr string, logger *logging.Logger) *Client {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}

	c := &Client{
		addr:    addr,
		timeout: DefaultTimeout,
		logger:  logger,
	}
	c.udpPool.New = func() any {
		return &dns.Client{
			Net:     "udp",
			Timeout: c.timeout,
		}
	}

	logger.Info("Upstream client initialized", "upstream", addr, "timeout", c.timeout)
	return c
}

// Exchange forwards q upstream and returns the upstream response. The
// caller builds q with the client's RD bit and EDNS posture already
// applied; nothing here rewrites it. Timeouts, transport errors, and
// malformed replies surface as errors for the handler to map to SERVFAIL.
func (c *Client) Exchange(ctx context.Context, q *dns.Msg) (*dns.Msg, error) {
	client := c.udpPool.Get().(*dns.Client)
	defer c.udpPool.Put(client)

	resp, rtt, err := client.ExchangeContext(ctx, q, c.addr)
	if err != nil {
		return nil, fmt.Errorf("upstream query failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("received nil response from %s", c.addr)
	}

	if resp.Truncated {
		c.logger.Debug("Upstream response truncated, retrying over TCP",
			"domain", q.Question[0].Name,
			"upstream", c.addr,
		)
		return c.exchangeTCP(ctx, q)
	}

	c.logger.Debug("Upstream query succeeded",
		"domain", q.Question[0].Name,
		"upstream", c.addr,
		"rtt", rtt,
		"answers", len(resp.Answer),
	)

	return resp, nil
}

func (c *Client) exchangeTCP(ctx context.Context, q *dns.Msg) (*dns.Msg, error) {
	client := &dns.Client{
		Net:     "tcp",
		Timeout: c.timeout,
	}

	resp, _, err := client.ExchangeContext(ctx, q, c.addr)
	if err != nil {
		return nil, fmt.Errorf("upstream TCP query failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("received nil response from %s", c.addr)
	}
	return resp, nil
}

// SetTimeout sets the query timeout duration.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Addr returns the configured upstream address.
func (c *Client) Addr() string {
	return c.addr
}
