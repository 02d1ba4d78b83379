package event

import "context"

// Sink receives the per-query trace. Implementations must not block the
// caller beyond a channel enqueue; the datapath calls these on every query.
type Sink interface {
	SendRequest(ev RequestEvent)
	SendResponse(ev ResponseEvent)

	// Close flushes outstanding events and stops background workers.
	Close(ctx context.Context) error
}

// NullSink drops every event. Selected when no sink backend is configured.
type NullSink struct{}

func (NullSink) SendRequest(RequestEvent)    {}
func (NullSink) SendResponse(ResponseEvent)  {}
func (NullSink) Close(context.Context) error { return nil }
