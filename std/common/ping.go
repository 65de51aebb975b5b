package common

import (
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/std/decorator"
)

// Ping is the trust ping message. Agents without an endpoint send it with
// return route to open a session for the messages waiting for them.
type Ping struct {
	Type              string            `json:"@type"`
	ID                string            `json:"@id"`
	Comment           string            `json:"comment,omitempty"`
	ResponseRequested bool              `json:"response_requested"`
	Thread            *decorator.Thread `json:"~thread,omitempty"`
}

type PingResponse struct {
	Type    string            `json:"@type"`
	ID      string            `json:"@id"`
	Comment string            `json:"comment,omitempty"`
	Thread  *decorator.Thread `json:"~thread,omitempty"`
}

func NewPing(responseRequested bool) *Ping {
	return &Ping{
		Type:              pltype.TrustPingPing,
		ID:                utils.UUID(),
		ResponseRequested: responseRequested,
	}
}

func NewPingResponse(thID string) *PingResponse {
	return &PingResponse{
		Type:   pltype.TrustPingResponse,
		ID:     utils.UUID(),
		Thread: &decorator.Thread{ID: thID},
	}
}
