// Package event carries the per-query trace records the resolver emits and
// the sinks that ship them to external storage. Sends never block the DNS
// datapath: events flow over bounded channels into batching workers, and
// overflow is dropped with a counter.
package event

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a query was answered.
type Outcome string

const (
	OutcomeBlocked   Outcome = "blocked"
	OutcomeForwarded Outcome = "forwarded"
	OutcomeError     Outcome = "error"
)

// RequestEvent is recorded once per inbound query, before dispatch.
type RequestEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Client    string    `json:"client"`
	Name      string    `json:"name"`
	Class     uint16    `json:"class"`
	Type      uint16    `json:"type"`
}

// ResponseEvent is recorded once per response, after it is built and before
// it is sent to the client.
type ResponseEvent struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	Timestamp   time.Time `json:"ts"`
	Outcome     Outcome   `json:"outcome"`
	Rcode       uint8     `json:"rcode"`
	AnswerCount uint16    `json:"answer_count"`
}

// NewID returns a time-ordered identifier (UUIDv7) as 32 hex characters.
// IDs generated later sort lexically after earlier ones, which keeps
// batched records sortable across flushes.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return hex.EncodeToString(id[:])
}

// NewRequestEvent stamps a request event with a fresh ID and the current
// time.
func NewRequestEvent(client, name string, class, qtype uint16) RequestEvent {
	return RequestEvent{
		ID:        NewID(),
		Timestamp: time.Now().UTC(),
		Client:    client,
		Name:      name,
		Class:     class,
		Type:      qtype,
	}
}

// NewResponseEvent stamps a response event tied to the originating request.
func NewResponseEvent(requestID string, outcome Outcome, rcode int, answers int) ResponseEvent {
	return ResponseEvent{
		ID:          NewID(),
		RequestID:   requestID,
		Timestamp:   time.Now().UTC(),
		Outcome:     outcome,
		Rcode:       uint8(rcode),
		AnswerCount: uint16(answers),
	}
}
