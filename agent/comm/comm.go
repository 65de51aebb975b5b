/*
Package comm is the message dispatcher of the DIDComm engine. It takes the
bytes the transport adapters receive, unpacks them, resolves the agent
context and connection, and calls the registered protocol handler. Outbound
messages go over an open session, a service endpoint or the mediator queue,
in that order.
*/
package comm

import (
	"context"

	"github.com/findy-network/findy-didcomm/agent/agency"
	"github.com/findy-network/findy-didcomm/agent/didcomm"
	"github.com/findy-network/findy-didcomm/agent/trans"
	"github.com/findy-network/findy-didcomm/std/decorator"
)

// Stage is the inbound pipeline state of a message.
type Stage int

const (
	Received Stage = iota
	Decoded
	Unpacked
	ContextResolved
	Routed
	Handled
	Responded
	Queued
	Dropped
)

func (s Stage) String() string {
	switch s {
	case Received:
		return "received"
	case Decoded:
		return "decoded"
	case Unpacked:
		return "unpacked"
	case ContextResolved:
		return "context-resolved"
	case Routed:
		return "routed"
	case Handled:
		return "handled"
	case Responded:
		return "responded"
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

// Outcome is the result of HandleOutbound.
type Outcome int

const (
	Undeliverable Outcome = iota
	SentToSession
	SentToTransport
	QueuedForPickup
)

func (o Outcome) String() string {
	switch o {
	case SentToSession:
		return "sent-to-session"
	case SentToTransport:
		return "sent-to-transport"
	case QueuedForPickup:
		return "queued-for-pickup"
	}
	return "undeliverable"
}

// InboundContext is built once per received message and given to the
// handler. It isn't retained after the pipeline.
type InboundContext struct {
	Message *didcomm.Msg

	// SenderKey is empty for anoncrypt and plaintext messages.
	SenderKey    string
	RecipientKey string

	Connection *agency.Connection
	Agent      *agency.Context

	// Session is the transport session the message came from, if any.
	Session trans.Session
}

// SessionID returns the ID of the inbound session or empty string.
func (ic *InboundContext) SessionID() string {
	if ic.Session == nil {
		return ""
	}
	return ic.Session.ID()
}

// Reply builds an outbound message back to the sender. The reply joins the
// inbound thread.
func (ic *InboundContext) Reply(msg *didcomm.Msg) *OutboundMessage {
	if msg.Thread() == nil {
		msg.SetThread(decorator.NewThread(ic.Message.ThreadID(), ""))
	}
	return &OutboundMessage{
		Agent:      ic.Agent,
		Message:    msg,
		Connection: ic.Connection,
		SessionID:  ic.SessionID(),
		Service:    ic.Message.Service(),
		SenderKey:  ic.RecipientKey,
		theirKey:   ic.SenderKey,
	}
}

// OutboundMessage is a message to be delivered. Either Connection or
// Service must be set.
type OutboundMessage struct {
	Agent      *agency.Context
	Message    *didcomm.Msg
	Connection *agency.Connection

	// SessionID is tried first, normally the session of the inbound message
	// we reply to.
	SessionID string

	// Service is used for connection-less messages.
	Service *decorator.Service

	// SenderKey overrides the connection's key. Empty means the connection's
	// key, and without a connection the message is anoncrypted.
	SenderKey string

	// NoQueue denies the mediator queue path.
	NoQueue bool

	theirKey string // sender key of the message we reply to
}

func (om *OutboundMessage) senderKey() string {
	if om.SenderKey != "" {
		return om.SenderKey
	}
	if om.Connection != nil {
		return om.Connection.OurKey
	}
	return ""
}

// Handler handles one inbound message type. It may return an outbound
// message, typically a reply built with InboundContext.Reply.
type Handler interface {
	Handle(ctx context.Context, in *InboundContext) (*OutboundMessage, error)
}

// HandlerFunc is an adapter to use functions as Handlers.
type HandlerFunc func(ctx context.Context, in *InboundContext) (*OutboundMessage, error)

func (f HandlerFunc) Handle(ctx context.Context, in *InboundContext) (*OutboundMessage, error) {
	return f(ctx, in)
}

// HandlerLookup finds the handler of a message type.
type HandlerLookup interface {
	Lookup(t didcomm.MsgType) (Handler, bool)
}

// Sender sends the packed bytes to the endpoint. Senders are chosen by the
// URI scheme of the endpoint.
type Sender interface {
	Send(ctx context.Context, endpoint string, data []byte) error
}

// Queuer persists packed messages for pickup. The mediator queue implements
// it.
type Queuer interface {
	Enqueue(ctx context.Context, connID string, recipientKeys []string, payload []byte) error
}
