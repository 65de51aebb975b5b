package common

import (
	"encoding/json"

	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/utils"
)

// Forward route forward message.
// nolint:lll // url in the next line is long
// https://github.com/hyperledger/aries-rfcs/blob/main/concepts/0094-cross-domain-messaging/README.md#corerouting10forward
type Forward struct {
	Type string          `json:"@type"`
	ID   string          `json:"@id"`
	To   string          `json:"to"`
	Msg  json.RawMessage `json:"msg"`
}

// NewForward wraps an encrypted envelope to a forward message addressed to
// the key.
func NewForward(to string, msg []byte) *Forward {
	return &Forward{
		Type: pltype.RoutingForward,
		ID:   utils.UUID(),
		To:   to,
		Msg:  msg,
	}
}
