/*
Package pickup has the messages of the message pickup protocol 2.0.
nolint:lll // url in the next line is long
https://github.com/hyperledger/aries-rfcs/blob/main/features/0685-pickup-v2/README.md
*/
package pickup

import (
	"time"

	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/std/decorator"
)

// StatusRequest asks the mediator how many messages it holds for us.
type StatusRequest struct {
	Type         string            `json:"@type"`
	ID           string            `json:"@id"`
	RecipientKey string            `json:"recipient_key,omitempty"`
	Thread       *decorator.Thread `json:"~thread,omitempty"`
}

// Status is the answer to StatusRequest, and it's sent after the delivery
// related messages as well.
type Status struct {
	Type               string            `json:"@type"`
	ID                 string            `json:"@id"`
	MessageCount       int               `json:"message_count"`
	RecipientKey       string            `json:"recipient_key,omitempty"`
	TotalBytes         int64             `json:"total_bytes,omitempty"`
	LongestWaitedSecs  int64             `json:"longest_waited_seconds,omitempty"`
	NewestReceivedTime string            `json:"newest_received_time,omitempty"`
	OldestReceivedTime string            `json:"oldest_received_time,omitempty"`
	LiveDelivery       bool              `json:"live_delivery,omitempty"`
	Thread             *decorator.Thread `json:"~thread,omitempty"`
}

type DeliveryRequest struct {
	Type         string            `json:"@type"`
	ID           string            `json:"@id"`
	Limit        int               `json:"limit"`
	RecipientKey string            `json:"recipient_key,omitempty"`
	Thread       *decorator.Thread `json:"~thread,omitempty"`
}

// Delivery carries the queued envelopes as JSON attachments. The attachment
// id is the id of the queued message.
type Delivery struct {
	Type         string                 `json:"@type"`
	ID           string                 `json:"@id"`
	RecipientKey string                 `json:"recipient_key,omitempty"`
	Attachments  []decorator.Attachment `json:"~attach"`
	Thread       *decorator.Thread      `json:"~thread,omitempty"`
}

type MessagesReceived struct {
	Type          string            `json:"@type"`
	ID            string            `json:"@id"`
	MessageIDList []string          `json:"message_id_list"`
	Thread        *decorator.Thread `json:"~thread,omitempty"`
}

type LiveDeliveryChange struct {
	Type         string            `json:"@type"`
	ID           string            `json:"@id"`
	LiveDelivery bool              `json:"live_delivery"`
	Thread       *decorator.Thread `json:"~thread,omitempty"`
}

func NewStatusRequest(recipientKey string) *StatusRequest {
	return &StatusRequest{
		Type:         pltype.PickupStatusRequest,
		ID:           utils.UUID(),
		RecipientKey: recipientKey,
	}
}

func NewStatus(count int, recipientKey string) *Status {
	return &Status{
		Type:         pltype.PickupStatus,
		ID:           utils.UUID(),
		MessageCount: count,
		RecipientKey: recipientKey,
	}
}

// SetReceivedTimes fills the optional time fields of the status. Zero times
// are left out.
func (s *Status) SetReceivedTimes(oldest, newest, now time.Time) {
	if !oldest.IsZero() {
		s.OldestReceivedTime = oldest.UTC().Format(time.RFC3339)
		s.LongestWaitedSecs = int64(now.Sub(oldest).Seconds())
	}
	if !newest.IsZero() {
		s.NewestReceivedTime = newest.UTC().Format(time.RFC3339)
	}
}

func NewDeliveryRequest(limit int, recipientKey string) *DeliveryRequest {
	return &DeliveryRequest{
		Type:         pltype.PickupDeliveryRequest,
		ID:           utils.UUID(),
		Limit:        limit,
		RecipientKey: recipientKey,
	}
}

func NewDelivery(recipientKey string, attachments []decorator.Attachment) *Delivery {
	return &Delivery{
		Type:         pltype.PickupDelivery,
		ID:           utils.UUID(),
		RecipientKey: recipientKey,
		Attachments:  attachments,
	}
}

func NewMessagesReceived(ids []string) *MessagesReceived {
	return &MessagesReceived{
		Type:          pltype.PickupMessagesReceived,
		ID:            utils.UUID(),
		MessageIDList: ids,
	}
}

func NewLiveDeliveryChange(on bool) *LiveDeliveryChange {
	return &LiveDeliveryChange{
		Type:         pltype.PickupLiveDeliveryChange,
		ID:           utils.UUID(),
		LiveDelivery: on,
	}
}
