/*
Package pickup implements both sides of the message pickup protocol 2.0. The
Holder is the mediator side which serves the forward queue to the recipients,
and the Recipient is the agent side which fetches its messages from the
mediator and feeds them to the inbound pipeline.

The protocol messages are defined in std/pickup.
*/
package pickup

import (
	"context"

	"github.com/findy-network/findy-didcomm/agent/agency"
	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/didcomm"
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/prot"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/std/common"
	"github.com/findy-network/findy-didcomm/std/decorator"
	pickupmsg "github.com/findy-network/findy-didcomm/std/pickup"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const minor = 0

// RegisterHolder registers the mediator side handlers.
func RegisterHolder(r *prot.Registry, h *Holder) {
	r.RegisterProtocol(prot.Protocol{
		DocURI: pltype.DIDOrg,
		Name:   pltype.ProtocolPickup,
		Major:  2,
		Minor:  minor,
		Handlers: map[string]comm.Handler{
			pltype.HandlerStatusRequest:      comm.HandlerFunc(h.statusRequest),
			pltype.HandlerDeliveryRequest:    comm.HandlerFunc(h.deliveryRequest),
			pltype.HandlerMessagesReceived:   comm.HandlerFunc(h.messagesReceived),
			pltype.HandlerLiveDeliveryChange: comm.HandlerFunc(h.liveDeliveryChange),
		},
	})
}

// RegisterRecipient registers the recipient side handlers.
func RegisterRecipient(r *prot.Registry, rc *Recipient) {
	r.RegisterProtocol(prot.Protocol{
		DocURI: pltype.DIDOrg,
		Name:   pltype.ProtocolPickup,
		Major:  2,
		Minor:  minor,
		Handlers: map[string]comm.Handler{
			pltype.HandlerStatus:   comm.HandlerFunc(rc.status),
			pltype.HandlerDelivery: comm.HandlerFunc(rc.delivery),
		},
	})
}

// Pickup starts a pickup round with the mediator by sending status-request.
// The request asks return routing, so the mediator's answers come back over
// the same session, and the Recipient handlers continue the round until the
// queue is empty.
func Pickup(ctx context.Context, d *comm.Dispatcher, agent *agency.Context,
	mediator *agency.Connection, recipientKey string) (err error) {
	defer err2.Handle(&err, "pickup from %s", mediator.ID)

	glog.V(3).Infoln("pickup from", mediator.ID, mediator.TheirLabel)
	try.To(send(ctx, d, agent, mediator, pickupmsg.NewStatusRequest(recipientKey)))
	return nil
}

// SetLive turns the live delivery mode on or off at the mediator. Live mode
// needs a duplex session, e.g. websocket, to stay open.
func SetLive(ctx context.Context, d *comm.Dispatcher, agent *agency.Context,
	mediator *agency.Connection, on bool) (err error) {
	defer err2.Handle(&err, "set live mode %v", on)

	try.To(send(ctx, d, agent, mediator, pickupmsg.NewLiveDeliveryChange(on)))
	return nil
}

func send(ctx context.Context, d *comm.Dispatcher, agent *agency.Context,
	mediator *agency.Connection, v any) error {
	msg, err := didcomm.NewMsg(v)
	if err != nil {
		return err
	}
	msg.SetReturnRoute(decorator.ReturnRouteAll)
	_, err = d.HandleOutbound(ctx, &comm.OutboundMessage{
		Agent:      agent,
		Message:    msg,
		Connection: mediator,
		NoQueue:    true,
	})
	return err
}

// reply builds the reply to the inbound pickup message. The replies of the
// Recipient ask return routing to keep the round in the same session.
func reply(in *comm.InboundContext, v any, returnRoute bool) (_ *comm.OutboundMessage, err error) {
	defer err2.Handle(&err)

	msg := try.To1(didcomm.NewMsg(v))
	if returnRoute {
		msg.SetReturnRoute(decorator.ReturnRouteAll)
	}
	out := in.Reply(msg)
	out.NoQueue = true
	return out, nil
}

func problem(in *comm.InboundContext, code, text string) (*comm.OutboundMessage, error) {
	return reply(in, common.NewProblemReport(code, text, in.Message.ID()), false)
}

func maxBatch(n int) int {
	if n > 0 {
		return n
	}
	return utils.Settings.MaxBatchSize()
}
