package pickup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/findy-network/findy-didcomm/agent/bus"
	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/std/decorator"
	pickupmsg "github.com/findy-network/findy-didcomm/std/pickup"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Recipient is the agent side of the pickup protocol. Delivered envelopes
// are handled by the Dispatcher like they had arrived from a transport.
type Recipient struct {
	Dispatcher *comm.Dispatcher

	// MaxBatch is the limit we ask. Zero means utils.Settings.MaxBatchSize.
	MaxBatch int
}

func (r *Recipient) status(_ context.Context, in *comm.InboundContext) (_ *comm.OutboundMessage, err error) {
	defer err2.Handle(&err, "status")

	var s pickupmsg.Status
	try.To(in.Message.Decode(&s))

	if s.MessageCount == 0 {
		glog.V(3).Infoln("pickup completed:", in.Message.ThreadID())
		e := bus.NewEvent(bus.PickupCompleted)
		e.ThreadID = in.Message.ThreadID()
		e.MessageID = in.Message.ID()
		if in.Connection != nil {
			e.ConnectionID = in.Connection.ID
		}
		in.Agent.Bus.Emit(e)
		return nil, nil
	}

	limit := min(s.MessageCount, maxBatch(r.MaxBatch))
	glog.V(3).Infof("mediator has %d messages, requesting %d", s.MessageCount, limit)
	return reply(in, pickupmsg.NewDeliveryRequest(limit, s.RecipientKey), true)
}

func (r *Recipient) delivery(ctx context.Context, in *comm.InboundContext) (_ *comm.OutboundMessage, err error) {
	defer err2.Handle(&err, "delivery")

	var d pickupmsg.Delivery
	try.To(in.Message.Decode(&d))

	if len(d.Attachments) == 0 {
		return problem(in, pltype.ProblemErrorProcessingAttaches,
			"Error processing attachments")
	}

	ids := make([]string, 0, len(d.Attachments))
	for _, att := range d.Attachments {
		ids = append(ids, att.ID)
		data, err := attachmentData(att)
		if err != nil {
			glog.Warningf("delivery %s attachment %s: %v", d.ID, att.ID, err)
			continue
		}
		// the delivered message has no session, its replies are routed
		// like any outbound message
		if err := r.Dispatcher.HandleInbound(ctx, data, nil); err != nil {
			glog.Warningf("delivered message %s: %v", att.ID, err)
		}
	}
	return reply(in, pickupmsg.NewMessagesReceived(ids), true)
}

func attachmentData(att decorator.Attachment) ([]byte, error) {
	switch {
	case att.Data.JSON != nil:
		return json.Marshal(att.Data.JSON)
	case att.Data.Base64 != "":
		return utils.DecodeB64(att.Data.Base64)
	}
	return nil, fmt.Errorf("attachment %s has no data", att.ID)
}
