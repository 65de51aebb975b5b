/*
Package decorator has the DIDComm message decorators the transport layer
understands: ~thread, ~transport, ~service and ~attach. Thread and attachment
types are the aries-framework-go ones to keep the wire format identical.
*/
package decorator

import (
	"github.com/hyperledger/aries-framework-go/pkg/didcomm/protocol/decorator"
)

type (
	Thread         = decorator.Thread
	Attachment     = decorator.Attachment
	AttachmentData = decorator.AttachmentData
)

// Return route values of the ~transport decorator.
const (
	ReturnRouteNone   = "none"
	ReturnRouteAll    = "all"
	ReturnRouteThread = "thread"
)

// Transport is the ~transport decorator. When ReturnRoute is set, the sender
// wants replies to come back over the same transport session.
type Transport struct {
	ReturnRoute       string `json:"return_route,omitempty"`
	ReturnRouteThread string `json:"return_route_thread,omitempty"`
}

// Service is the ~service decorator of connection-less messages, and the
// DIDComm service block of a connection.
type Service struct {
	ID              string   `json:"id,omitempty"`
	RecipientKeys   []string `json:"recipientKeys"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint"`
}
