package comm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/findy-network/findy-didcomm/agent/agency"
	"github.com/findy-network/findy-didcomm/agent/bus"
	"github.com/findy-network/findy-didcomm/agent/didcomm"
	"github.com/findy-network/findy-didcomm/agent/packager"
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/trans"
	"github.com/findy-network/findy-didcomm/std/decorator"
	"github.com/golang/glog"
)

// ErrInvalidMessage is returned for inbound bytes which are neither an
// envelope nor a plaintext message.
var ErrInvalidMessage = errors.New("invalid inbound message")

// HandleInbound runs the inbound pipeline for the received bytes. The session
// is nil when the transport has no back channel. Decryption failures are
// returned as packager.EnvelopeDecryptionError.
func (d *Dispatcher) HandleInbound(ctx context.Context, raw []byte, session trans.Session) (err error) {
	in, err := d.receive(ctx, raw, session)
	if err != nil {
		return err
	}
	return d.dispatch(ctx, in)
}

// receive decodes and unpacks the message and resolves its context and
// connection.
func (d *Dispatcher) receive(ctx context.Context, raw []byte, session trans.Session) (in *InboundContext, err error) {
	var (
		agent     *agency.Context
		plaintext []byte
		sender    string
		recipient string
	)
	d.stage("", Received)

	env, perr := packager.Parse(raw)
	switch {
	case perr == nil:
		d.stage("", Decoded)
		kids, err := env.RecipientKids()
		if err != nil {
			return nil, d.decryptionFailed(nil, err)
		}
		agent, err = d.contexts.ResolveContext(ctx, kids)
		if err != nil {
			return nil, d.decryptionFailed(nil,
				&packager.EnvelopeDecryptionError{Reason: "no local recipient"})
		}
		dec, err := agent.Packager.Unpack(env)
		if err != nil {
			return nil, d.decryptionFailed(agent, err)
		}
		plaintext, sender, recipient = dec.Plaintext, dec.SenderKey, dec.RecipientKey

	case didcomm.IsPlaintext(raw):
		d.stage("", Decoded)
		agent, err = d.contexts.ResolveContext(ctx, nil)
		if err != nil {
			return nil, d.reject(nil, err)
		}
		plaintext = raw

	default:
		return nil, d.reject(nil, ErrInvalidMessage)
	}

	msg, err := didcomm.ParseMsg(plaintext)
	if err != nil {
		return nil, d.reject(agent, err)
	}
	d.stage(msg.ID(), Unpacked)

	var conn *agency.Connection
	if sender != "" && recipient != "" && agent.Connections != nil {
		conn, err = agent.Connections.FindByKeys(ctx, sender, recipient)
		if err != nil {
			glog.Warningf("connection lookup for msg %s: %v", msg.ID(), err)
			conn = nil
		}
	}
	d.stage(msg.ID(), ContextResolved)

	if session != nil && msg.HasReturnRoute() {
		d.sessions.RouteThread(session, routeThread(msg))
		d.sessions.Bind(session, sender, recipient)
		if conn != nil {
			d.sessions.BindConnection(session, conn.ID)
		}
		d.metrics.SetSessions(d.sessions.Len())
	}

	in = &InboundContext{
		Message:      msg,
		SenderKey:    sender,
		RecipientKey: recipient,
		Connection:   conn,
		Agent:        agent,
		Session:      session,
	}

	e := bus.NewEvent(bus.MessageReceived)
	e.MessageID = msg.ID()
	e.MessageType = msg.Type()
	e.ThreadID = msg.ThreadID()
	e.ConnectionID = in.connectionID()
	e.Payload = msg.JSON()
	d.emit(agent, e)

	return in, nil
}

// routeThread returns the thread of return route "thread" mode. It's empty
// for "all".
func routeThread(msg *didcomm.Msg) string {
	t := msg.Transport()
	if t == nil || t.ReturnRoute != decorator.ReturnRouteThread {
		return ""
	}
	if t.ReturnRouteThread != "" {
		return t.ReturnRouteThread
	}
	return msg.ThreadID()
}

func (ic *InboundContext) connectionID() string {
	if ic.Connection == nil {
		return ""
	}
	return ic.Connection.ID
}

func (d *Dispatcher) reject(agent *agency.Context, err error) error {
	glog.Warningln("inbound rejected:", err)
	d.metrics.RecordInbound("rejected")
	e := bus.NewEvent(bus.InboundRejected)
	e.Err = err
	d.emit(agent, e)
	return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
}

func (d *Dispatcher) decryptionFailed(agent *agency.Context, err error) error {
	glog.Warningln("inbound:", err)
	d.metrics.RecordInbound("decryption-failed")
	e := bus.NewEvent(bus.DecryptionFailed)
	e.Err = err
	d.emit(agent, e)
	return err
}

// dispatch routes the message to its handler and sends the handler's
// outbound message.
func (d *Dispatcher) dispatch(ctx context.Context, in *InboundContext) (err error) {
	msg := in.Message

	mt, err := msg.MsgType()
	if err != nil {
		return d.unsupported(ctx, in, pltype.ProblemMessageParseFailure)
	}
	h, ok := d.handlers.Lookup(mt)
	if !ok {
		return d.unsupported(ctx, in, pltype.ProblemUnsupportedVersion)
	}
	d.stage(msg.ID(), Routed)

	unlock := d.threads.Lock(in.Agent.ID + "/" + msg.ThreadID())
	start := time.Now()
	out, err := invoke(ctx, h, in)
	unlock()

	d.metrics.RecordHandler(mt.ProtocolURI(), time.Since(start).Seconds(), err != nil)
	if err != nil {
		glog.Errorf("handler %s for msg %s: %v", mt, msg.ID(), err)
		d.metrics.RecordInbound("handler-failed")
		e := bus.NewEvent(bus.HandlerFailed)
		e.MessageID = msg.ID()
		e.MessageType = msg.Type()
		e.ThreadID = msg.ThreadID()
		e.ConnectionID = in.connectionID()
		e.Err = err
		d.emit(in.Agent, e)
		return err
	}
	d.stage(msg.ID(), Handled)
	d.metrics.RecordInbound(Handled.String())

	if out == nil {
		return nil
	}
	if out.Agent == nil {
		out.Agent = in.Agent
	}
	if out.SessionID == "" {
		out.SessionID = in.SessionID()
	}
	outcome, err := d.HandleOutbound(ctx, out)
	if err != nil {
		return err
	}
	if outcome == QueuedForPickup {
		d.stage(msg.ID(), Queued)
	} else {
		d.stage(msg.ID(), Responded)
	}
	return nil
}

// invoke calls the handler and turns its panic into an error.
func invoke(ctx context.Context, h Handler, in *InboundContext) (out *OutboundMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, in)
}

// unsupported reports the unhandled message with a problem report when we
// know where to send it.
func (d *Dispatcher) unsupported(ctx context.Context, in *InboundContext, code string) error {
	msg := in.Message
	uerr := &UnsupportedProtocolVersionError{MessageType: msg.Type(), Code: code}
	glog.Warningf("msg %s: %v", msg.ID(), uerr)
	d.stage(msg.ID(), Dropped)
	d.metrics.RecordInbound(Dropped.String())

	if in.Connection == nil || isProblemReport(msg) {
		return uerr
	}
	out := in.Reply(problemReport(code, uerr.Error(), msg.ID()))
	if _, err := d.HandleOutbound(ctx, out); err != nil {
		glog.Warningf("problem report for msg %s: %v", msg.ID(), err)
	}
	return uerr
}

func isProblemReport(msg *didcomm.Msg) bool {
	mt, err := msg.MsgType()
	if err != nil {
		return false
	}
	return mt.Name == pltype.HandlerProblemReport
}
