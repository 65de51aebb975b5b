package mediator

import (
	"context"
	"fmt"

	"github.com/findy-network/findy-didcomm/agent/bus"
	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/findy-network/findy-didcomm/std/common"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// ForwardHandler queues the forward messages for the connection which owns
// the to key. Forward senders are anonymous so errors aren't reported back.
type ForwardHandler struct {
	Queue *Queue
}

var _ comm.Handler = (*ForwardHandler)(nil)

func (h *ForwardHandler) Handle(ctx context.Context, in *comm.InboundContext) (_ *comm.OutboundMessage, err error) {
	defer err2.Handle(&err, "forward")

	var fwd common.Forward
	try.To(in.Message.Decode(&fwd))
	if fwd.To == "" || len(fwd.Msg) == 0 || string(fwd.Msg) == "null" {
		return nil, fmt.Errorf("forward %s: missing to or msg", in.Message.ID())
	}
	to := try.To1(sec.NormalizeKey(fwd.To))

	conn, err := in.Agent.Connections.ConnectionByRecipientKey(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("no connection for forward key: %w", err)
	}
	try.To(h.Queue.Enqueue(ctx, conn.ID, []string{to}, fwd.Msg))

	glog.V(3).Infof("forward %s queued to connection %s", in.Message.ID(), conn.ID)
	e := bus.NewEvent(bus.MessageQueued)
	e.ConnectionID = conn.ID
	e.MessageID = in.Message.ID()
	in.Agent.Bus.Emit(e)
	return nil, nil
}
