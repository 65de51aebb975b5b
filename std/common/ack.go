package common

import (
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/std/decorator"
)

const AckStatusOK = "OK"

// Ack acknowledgement struct
type Ack struct {
	Type   string            `json:"@type,omitempty"`
	ID     string            `json:"@id,omitempty"`
	Status string            `json:"status,omitempty"`
	Thread *decorator.Thread `json:"~thread,omitempty"`
}

func NewAck(thID string) *Ack {
	return &Ack{
		Type:   pltype.NotificationAck,
		ID:     utils.UUID(),
		Status: AckStatusOK,
		Thread: &decorator.Thread{ID: thID},
	}
}
