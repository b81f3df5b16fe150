// Package audit defines the document history trail and the domain events
// emitted alongside every committed transition.
package audit

import (
	"context"
	"time"

	"stockflow/internal/core/id"
)

// Event types written to the outbox.
const (
	EventDocumentSubmitted = "document.submitted"
	EventDocumentApproved  = "document.approved"
	EventDocumentRejected  = "document.rejected"
	EventDocumentCancelled = "document.cancelled"
	EventDocumentReopened  = "document.reopened"
	EventPaymentAllocated  = "payment.allocated"
	EventStockReconciled   = "stock.reconciled"
)

// Event is a domain event recorded in the same transaction as the change it describes.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Publisher writes events. Implementations must join the transaction carried by ctx.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Entry is one row of a document's history.
type Entry struct {
	ID         id.ID     `json:"id" db:"id"`
	DocumentID id.ID     `json:"document_id" db:"document_id"`
	Action     string    `json:"action" db:"action"`
	FromState  string    `json:"from_state" db:"from_state"`
	ToState    string    `json:"to_state" db:"to_state"`
	Actor      string    `json:"actor" db:"actor_id"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
	Snapshot   []byte    `json:"-" db:"snapshot"`
	At         time.Time `json:"at" db:"created_at"`
}

// Recorder persists history entries in the current transaction.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, documentID id.ID) ([]Entry, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// NopPublisher discards events.
var NopPublisher Publisher = nopPublisher{}
