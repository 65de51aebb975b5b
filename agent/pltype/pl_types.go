// Package pltype holds the DIDComm message type constants of the protocols
// the mediator and its clients speak.
package pltype

// Document URIs
const (
	Nothing     = ""
	DIDOrg      = "https://didcomm.org"                 // current Aries doc URI
	Aries       = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec" // legacy doc URI, normalized to DIDOrg
	QueueScheme = "didcomm:transport/queue"             // queue service endpoint
)

// Routing protocol constants
const (
	ProtocolRouting = "routing"
	HandlerForward  = "forward"
	Routing         = DIDOrg + "/" + ProtocolRouting
	RoutingForward  = Routing + "/1.0/" + HandlerForward
)

// Notification protocol constants
const (
	ProtocolNotification      = "notification"
	HandlerProblemReport      = "problem-report"
	HandlerAck                = "ack"
	Notification              = DIDOrg + "/" + ProtocolNotification
	NotificationProblemReport = Notification + "/1.0/" + HandlerProblemReport
	NotificationAck           = Notification + "/1.0/" + HandlerAck
)

// Message pickup v2 protocol constants
const (
	ProtocolPickup            = "messagepickup"
	HandlerStatusRequest      = "status-request"
	HandlerStatus             = "status"
	HandlerDeliveryRequest    = "delivery-request"
	HandlerDelivery           = "delivery"
	HandlerMessagesReceived   = "messages-received"
	HandlerLiveDeliveryChange = "live-delivery-change"

	Pickup                   = DIDOrg + "/" + ProtocolPickup + "/2.0"
	PickupStatusRequest      = Pickup + "/" + HandlerStatusRequest
	PickupStatus             = Pickup + "/" + HandlerStatus
	PickupDeliveryRequest    = Pickup + "/" + HandlerDeliveryRequest
	PickupDelivery           = Pickup + "/" + HandlerDelivery
	PickupMessagesReceived   = Pickup + "/" + HandlerMessagesReceived
	PickupLiveDeliveryChange = Pickup + "/" + HandlerLiveDeliveryChange
)

// Trust ping protocol constants, used by clients to open return routes.
const (
	ProtocolTrustPing   = "trust_ping"
	HandlerPing         = "ping"
	HandlerPingResponse = "ping_response"
	TrustPing           = DIDOrg + "/" + ProtocolTrustPing
	TrustPingPing       = TrustPing + "/1.0/" + HandlerPing
	TrustPingResponse   = TrustPing + "/1.0/" + HandlerPingResponse
)

// Problem report codes
const (
	ProblemMessageParseFailure     = "message-parse-failure"
	ProblemUnsupportedVersion      = "unsupported-protocol-version"
	ProblemLiveModeNotSupported    = "e.m.live-mode-not-supported"
	ProblemErrorProcessingAttaches = "e.m.error-processing-attachments"
)
