package comm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/findy-network/findy-didcomm/agent/bus"
	"github.com/findy-network/findy-didcomm/agent/packager"
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/findy-network/findy-didcomm/agent/trans"
	"github.com/findy-network/findy-didcomm/std/decorator"
	"github.com/golang/glog"
)

// ErrNoSession is returned by SendToSession when no session is open to the
// receiver.
var ErrNoSession = errors.New("no session")

// HandleOutbound delivers the message. Paths are tried once each in the
// order: open session, service endpoints, mediator queue. MessageSent event
// is emitted for every outcome.
func (d *Dispatcher) HandleOutbound(ctx context.Context, out *OutboundMessage) (outcome Outcome, err error) {
	defer func() {
		d.metrics.RecordOutbound(outcome.String())
		e := bus.NewEvent(bus.MessageSent)
		e.MessageID = out.Message.ID()
		e.MessageType = out.Message.Type()
		e.ThreadID = out.Message.ThreadID()
		if out.Connection != nil {
			e.ConnectionID = out.Connection.ID
		}
		e.Outcome = outcome.String()
		e.Err = err
		d.emit(out.Agent, e)
	}()

	if out.Agent == nil {
		return Undeliverable, errors.New("outbound message has no agent context")
	}
	conn := out.Connection
	if conn == nil && out.Service == nil {
		glog.Errorln("outbound message has no associated connection")
		return Undeliverable, newSendingError(out, nil, "%v", ErrNoConnection)
	}

	var errs []error

	if entry := d.findSession(out); entry != nil {
		glog.V(3).Infof("found session %s for msg %s", entry.ID(), out.Message.ID())
		err := d.sendToSession(ctx, out, entry)
		if err == nil {
			return SentToSession, nil
		}
		glog.V(1).Infof("sending msg %s via session failed: %v", out.Message.ID(), err)
		errs = append(errs, err)
	}

	services, queueService := d.services(out)
	if len(services) > 0 && out.Agent.Endpoint == "" && !out.Message.HasTransport() {
		// we can receive only thru return routes
		out.Message.SetReturnRoute(decorator.ReturnRouteAll)
	}
	for _, s := range services {
		if err := d.sendToService(ctx, out, s); err != nil {
			glog.V(1).Infof("sending msg %s to service %s failed: %v",
				out.Message.ID(), s.ServiceEndpoint, err)
			errs = append(errs, err)
			continue
		}
		return SentToTransport, nil
	}

	if conn == nil {
		id := ""
		if out.Service != nil {
			id = out.Service.ID
		}
		glog.Errorf("message is undeliverable to service with id %s", id)
		return Undeliverable, newSendingError(out, errs,
			"Message is undeliverable to service with id %s", id)
	}

	if q := d.queue(); q != nil && queueService != nil && !out.NoQueue {
		err := d.enqueue(ctx, q, out, queueService)
		if err == nil {
			glog.V(3).Infof("queued msg %s for connection %s (%s)",
				out.Message.ID(), conn.ID, conn.TheirLabel)
			return QueuedForPickup, nil
		}
		errs = append(errs, err)
	}

	glog.Errorf("Message is undeliverable to connection %s (%s)", conn.ID, conn.TheirLabel)
	return Undeliverable, newSendingError(out, errs,
		"Message is undeliverable to connection %s (%s)", conn.ID, conn.TheirLabel)
}

// SendToSession tries only the session path. The mediator uses it for the
// live mode pushes.
func (d *Dispatcher) SendToSession(ctx context.Context, out *OutboundMessage) error {
	entry := d.findSession(out)
	if entry == nil {
		return ErrNoSession
	}
	return d.sendToSession(ctx, out, entry)
}

// findSession looks the session up by the session ID, connection ID and
// their keys in that order.
// findSession returns the first session that may carry the message's
// thread: by the session id, by the connection, and by their keys.
func (d *Dispatcher) findSession(out *OutboundMessage) *trans.Entry {
	thid := out.Message.ThreadID()
	usable := func(e *trans.Entry, ok bool) bool {
		if ok && !e.Serves(thid) {
			glog.V(3).Infof("session %s doesn't route thread %s", e.Session.ID(), thid)
			return false
		}
		return ok
	}
	if out.SessionID != "" {
		if e, ok := d.sessions.FindByID(out.SessionID); usable(e, ok) {
			return e
		}
	}
	if out.Connection != nil {
		if e, ok := d.sessions.FindByConnectionID(out.Connection.ID); usable(e, ok) {
			return e
		}
	}
	for _, k := range d.theirKeys(out) {
		if e, ok := d.sessions.FindByKey(k); usable(e, ok) {
			return e
		}
	}
	return nil
}

func (d *Dispatcher) theirKeys(out *OutboundMessage) []string {
	var keys []string
	if out.theirKey != "" {
		keys = append(keys, out.theirKey)
	}
	if out.Connection != nil {
		keys = append(keys, out.Connection.RecipientKeys()...)
	} else if out.Service != nil {
		for _, k := range out.Service.RecipientKeys {
			if nk, err := sec.NormalizeKey(k); err == nil {
				keys = append(keys, nk)
			}
		}
	}
	return keys
}

func (d *Dispatcher) sendToSession(ctx context.Context, out *OutboundMessage, entry *trans.Entry) error {
	keys := packager.Keys{
		RecipientKeys: entry.TheirKeys,
		SenderKey:     out.senderKey(),
	}
	if len(keys.RecipientKeys) == 0 {
		keys.RecipientKeys = d.theirKeys(out)
	}
	if keys.SenderKey == "" {
		keys.SenderKey = entry.OurKey
	}
	if len(keys.RecipientKeys) == 0 {
		return fmt.Errorf("session %s: no recipient keys", entry.ID())
	}
	data, err := out.Agent.Packager.PackJSON(out.Message.JSON(), keys)
	if err != nil {
		return err
	}
	return entry.Send(ctx, data)
}

// services returns the transport services in our priority order, and the
// queue service if they have one.
func (d *Dispatcher) services(out *OutboundMessage) (services []decorator.Service, queue *decorator.Service) {
	var all []decorator.Service
	if out.Connection != nil {
		all = out.Connection.Services
	} else if out.Service != nil {
		all = []decorator.Service{*out.Service}
	}
	for i := range all {
		if all[i].ServiceEndpoint == pltype.QueueScheme {
			if queue == nil {
				queue = &all[i]
			}
			continue
		}
		services = append(services, all[i])
	}
	sort.SliceStable(services, func(i, j int) bool {
		return d.priority(services[i].ServiceEndpoint) < d.priority(services[j].ServiceEndpoint)
	})
	return services, queue
}

func (d *Dispatcher) priority(endpoint string) int {
	s := scheme(endpoint)
	for i, p := range d.schemes {
		if p == s {
			return i
		}
	}
	return len(d.schemes)
}

func (d *Dispatcher) sendToService(ctx context.Context, out *OutboundMessage, s decorator.Service) error {
	sender, ok := d.sender(s.ServiceEndpoint)
	if !ok {
		return fmt.Errorf("no outbound transport for %s", s.ServiceEndpoint)
	}
	if len(s.RecipientKeys) == 0 {
		return fmt.Errorf("service %s has no recipient keys", s.ID)
	}
	data, err := out.Agent.Packager.PackJSON(out.Message.JSON(), packager.Keys{
		RecipientKeys: s.RecipientKeys,
		RoutingKeys:   s.RoutingKeys,
		SenderKey:     out.senderKey(),
	})
	if err != nil {
		return err
	}
	return sender.Send(ctx, s.ServiceEndpoint, data)
}

func (d *Dispatcher) enqueue(ctx context.Context, q Queuer, out *OutboundMessage, s *decorator.Service) error {
	recipients := s.RecipientKeys
	if len(recipients) == 0 {
		recipients = out.Connection.RecipientKeys()
	}
	keys := packager.Keys{
		RecipientKeys: recipients,
		RoutingKeys:   s.RoutingKeys,
		SenderKey:     out.senderKey(),
	}
	data, err := out.Agent.Packager.PackJSON(out.Message.JSON(), keys)
	if err != nil {
		return err
	}
	normalized := make([]string, 0, len(recipients))
	for _, k := range recipients {
		if nk, err := sec.NormalizeKey(k); err == nil {
			normalized = append(normalized, nk)
		}
	}
	return q.Enqueue(ctx, out.Connection.ID, normalized, data)
}
