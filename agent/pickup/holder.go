package pickup

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/findy-network/findy-didcomm/agent/bus"
	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/didcomm"
	"github.com/findy-network/findy-didcomm/agent/mediator"
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/storage/api"
	"github.com/findy-network/findy-didcomm/agent/trans"
	"github.com/findy-network/findy-didcomm/std/decorator"
	pickupmsg "github.com/findy-network/findy-didcomm/std/pickup"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Holder is the mediator side of the pickup protocol. It serves the
// connection's forward queue and pushes the new messages to the live mode
// sessions.
type Holder struct {
	Queue      *mediator.Queue
	Dispatcher *comm.Dispatcher

	// MaxBatch limits the delivery size. Zero means
	// utils.Settings.MaxBatchSize.
	MaxBatch int
}

var _ mediator.Pusher = (*Holder)(nil)

// NewHolder creates the holder and installs it as the queue's live pusher.
func NewHolder(q *mediator.Queue, d *comm.Dispatcher) *Holder {
	h := &Holder{Queue: q, Dispatcher: d}
	q.SetPusher(h)
	return h
}

var errNoConnection = errors.New("pickup needs a connection")

func (h *Holder) statusRequest(ctx context.Context, in *comm.InboundContext) (_ *comm.OutboundMessage, err error) {
	defer err2.Handle(&err, "status-request")

	if in.Connection == nil {
		return nil, errNoConnection
	}
	var req pickupmsg.StatusRequest
	try.To(in.Message.Decode(&req))

	return reply(in, try.To1(h.status(ctx, in, req.RecipientKey)), false)
}

func (h *Holder) status(ctx context.Context, in *comm.InboundContext, recipientKey string) (_ *pickupmsg.Status, err error) {
	defer err2.Handle(&err)

	connID := in.Connection.ID
	detail := try.To1(h.Queue.StatusDetail(ctx, connID, recipientKey))
	s := pickupmsg.NewStatus(detail.MessageCount, recipientKey)
	s.TotalBytes = detail.TotalBytes
	s.SetReceivedTimes(detail.Oldest, detail.Newest, time.Now())
	s.LiveDelivery = h.Queue.Live().IsLive(connID)

	if glog.V(2) {
		oldest := "-"
		if !detail.Oldest.IsZero() {
			oldest = humanize.Time(detail.Oldest)
		}
		glog.Infof("queue of %s: %d messages, %s, oldest %s",
			connID, detail.MessageCount,
			humanize.Bytes(uint64(detail.TotalBytes)), oldest)
	}
	return s, nil
}

func (h *Holder) deliveryRequest(ctx context.Context, in *comm.InboundContext) (_ *comm.OutboundMessage, err error) {
	defer err2.Handle(&err, "delivery-request")

	if in.Connection == nil {
		return nil, errNoConnection
	}
	var req pickupmsg.DeliveryRequest
	try.To(in.Message.Decode(&req))

	limit := min(req.Limit, maxBatch(h.MaxBatch))
	msgs, err := h.Queue.DeliverBatch(ctx, in.Connection.ID, req.RecipientKey, limit)
	if errors.Is(err, mediator.ErrQueueContention) {
		glog.V(1).Infoln("delivery-request:", err)
		return reply(in, try.To1(h.status(ctx, in, req.RecipientKey)), false)
	}
	try.To(err)

	if len(msgs) == 0 {
		return reply(in, pickupmsg.NewStatus(0, req.RecipientKey), false)
	}
	glog.V(3).Infof("delivering %d messages to %s", len(msgs), in.Connection.ID)
	return reply(in, newDelivery(req.RecipientKey, msgs), false)
}

func (h *Holder) messagesReceived(ctx context.Context, in *comm.InboundContext) (_ *comm.OutboundMessage, err error) {
	defer err2.Handle(&err, "messages-received")

	if in.Connection == nil {
		return nil, errNoConnection
	}
	var req pickupmsg.MessagesReceived
	try.To(in.Message.Decode(&req))

	try.To1(h.Queue.Acknowledge(ctx, in.Connection.ID, req.MessageIDList))
	return reply(in, try.To1(h.status(ctx, in, "")), false)
}

func (h *Holder) liveDeliveryChange(ctx context.Context, in *comm.InboundContext) (_ *comm.OutboundMessage, err error) {
	defer err2.Handle(&err, "live-delivery-change")

	if in.Connection == nil {
		return nil, errNoConnection
	}
	var req pickupmsg.LiveDeliveryChange
	try.To(in.Message.Decode(&req))

	connID := in.Connection.ID
	if !req.LiveDelivery {
		h.Queue.Live().Stop(connID)
		return reply(in, try.To1(h.status(ctx, in, "")), false)
	}
	if !duplex(in) {
		glog.V(1).Infoln("live mode refused, no duplex session:", connID)
		return problem(in, pltype.ProblemLiveModeNotSupported,
			"Connection does not support Live Delivery")
	}
	h.Queue.Live().Start(connID, mediator.LiveTarget{
		Agent:      in.Agent,
		Connection: in.Connection,
		SessionID:  in.SessionID(),
	})
	return reply(in, try.To1(h.status(ctx, in, "")), false)
}

// duplex tells if the message came over a return routed session which stays
// open after the reply.
func duplex(in *comm.InboundContext) bool {
	return in.Session != nil && in.Session.Type() != trans.TypeHTTP &&
		in.Message.HasReturnRoute()
}

// Push sends the messages as a delivery over the live session.
func (h *Holder) Push(ctx context.Context, target mediator.LiveTarget, msgs []*api.QueuedMessage) (err error) {
	defer err2.Handle(&err, "live push to %s", target.Connection.ID)

	msg := try.To1(didcomm.NewMsg(newDelivery("", msgs)))
	try.To(h.Dispatcher.SendToSession(ctx, &comm.OutboundMessage{
		Agent:      target.Agent,
		Message:    msg,
		Connection: target.Connection,
		SessionID:  target.SessionID,
		NoQueue:    true,
	}))

	e := bus.NewEvent(bus.LiveDelivered)
	e.ConnectionID = target.Connection.ID
	e.MessageID = msg.ID()
	target.Agent.Bus.Emit(e)
	return nil
}

func newDelivery(recipientKey string, msgs []*api.QueuedMessage) *pickupmsg.Delivery {
	atts := make([]decorator.Attachment, len(msgs))
	for i, m := range msgs {
		atts[i] = decorator.NewJSONAttachment(m.ID, json.RawMessage(m.Payload))
	}
	return pickupmsg.NewDelivery(recipientKey, atts)
}
