/*
Package api defines the record model of the mediator's forward queue and the
Store interface persisting it. Implementations live in the sibling packages.
*/
package api

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record doesn't exist.
var ErrNotFound = errors.New("record not found")

// State of the queued message.
type State int

const (
	// Pending messages wait for the pickup or live delivery.
	Pending State = iota

	// InFlight messages are delivered but not yet acknowledged. They turn
	// back to Pending when InFlightUntil passes.
	InFlight

	// Delivered messages are acknowledged. They are normally deleted right
	// away, the state exists for stores which keep the history.
	Delivered
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	case Delivered:
		return "delivered"
	}
	return "unknown"
}

// QueuedMessage is one encrypted message waiting for its recipient.
type QueuedMessage struct {
	ID            string    `cbor:"id"`
	ConnectionID  string    `cbor:"conn"`
	RecipientKeys []string  `cbor:"keys,omitempty"`
	Payload       []byte    `cbor:"payload"`
	ReceivedAt    time.Time `cbor:"received"`
	State         State     `cbor:"state"`
	InFlightUntil time.Time `cbor:"until"`

	// Seq is the receipt order inside the connection, set by the store.
	Seq uint64 `cbor:"-"`
}

// Expired tells if the message is in-flight and its timeout has passed.
func (m *QueuedMessage) Expired(now time.Time) bool {
	return m.State == InFlight && !m.InFlightUntil.After(now)
}

// Store persists queued messages. FindByConnectionID returns the messages
// in receipt order.
type Store interface {
	Save(ctx context.Context, msg *QueuedMessage) error
	FindByConnectionID(ctx context.Context, connID string) ([]*QueuedMessage, error)
	Update(ctx context.Context, msgs ...*QueuedMessage) error
	Delete(ctx context.Context, connID string, ids []string) (n int, err error)
	ConnectionIDs(ctx context.Context) ([]string, error)
	Close() error
}
