package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ExchangeName = "library.events"

	LoanBorrowed = "loan.borrowed"
	LoanReturned = "loan.returned"
	LoanRenewed  = "loan.renewed"

	eventVersion = "1.0.0"
)

// Event is the envelope published for every committed loan transition.
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	EventVersion  string         `json:"event_version"`
	Timestamp     string         `json:"timestamp"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload"`
}

type correlationKey struct{}

// WithCorrelationID tags ctx so events published under it carry the id
// (the HTTP layer passes the request id).
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// New builds an event stamped at now.
func New(ctx context.Context, eventType string, payload map[string]any) Event {
	e := Event{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: eventVersion,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Payload:      payload,
	}
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		e.CorrelationID = id
	}
	return e
}

func (e Event) Marshal() ([]byte, error) { return json.Marshal(e) }

// Publisher delivers committed loan events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
