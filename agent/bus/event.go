package bus

import (
	"time"

	"github.com/findy-network/findy-didcomm/agent/utils"
)

type EventType string

// Event types of the transport and routing engine.
const (
	MessageReceived  EventType = "MessageReceived"
	MessageSent      EventType = "MessageSent"
	InboundRejected  EventType = "InboundRejected"
	DecryptionFailed EventType = "DecryptionFailed"
	HandlerFailed    EventType = "HandlerFailed"
	MessageQueued    EventType = "MessageQueued"
	LiveDelivered    EventType = "LiveDelivered"
	PickupCompleted  EventType = "PickupCompleted"
	ContextClosed    EventType = "ContextClosed"
)

// Event is a notification of the agent context. Only the fields meaningful
// to the event type are set.
type Event struct {
	ID           string
	Type         EventType
	ContextID    string
	ConnectionID string
	ThreadID     string
	MessageID    string
	MessageType  string
	Outcome      string
	Err          error
	Payload      []byte
	Timestamp    int64
}

// NewEvent creates an event with id and timestamp.
func NewEvent(t EventType) Event {
	return Event{
		ID:        utils.UUID(),
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
	}
}
