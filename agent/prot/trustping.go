package prot

import (
	"context"

	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/didcomm"
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/std/common"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// RegisterTrustPing registers the trust ping handlers. A ping is the
// simplest way for a recipient without an endpoint to open a return
// routed session.
func RegisterTrustPing(r *Registry) {
	r.RegisterProtocol(Protocol{
		DocURI: pltype.DIDOrg,
		Name:   pltype.ProtocolTrustPing,
		Major:  1,
		Handlers: map[string]comm.Handler{
			pltype.HandlerPing:         comm.HandlerFunc(handlePing),
			pltype.HandlerPingResponse: comm.HandlerFunc(handlePingResponse),
		},
	})
}

func handlePing(_ context.Context, in *comm.InboundContext) (_ *comm.OutboundMessage, err error) {
	defer err2.Handle(&err, "trust ping")

	var ping common.Ping
	try.To(in.Message.Decode(&ping))
	if !ping.ResponseRequested {
		return nil, nil
	}
	resp := try.To1(didcomm.NewMsg(common.NewPingResponse(in.Message.ThreadID())))
	return in.Reply(resp), nil
}

func handlePingResponse(_ context.Context, in *comm.InboundContext) (*comm.OutboundMessage, error) {
	glog.V(3).Infoln("ping response, thread:", in.Message.ThreadID())
	return nil, nil
}
