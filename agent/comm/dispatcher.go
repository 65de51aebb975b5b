package comm

import (
	"net/url"
	"strings"
	"sync"

	"github.com/findy-network/findy-didcomm/agent/agency"
	"github.com/findy-network/findy-didcomm/agent/bus"
	"github.com/findy-network/findy-didcomm/agent/metrics"
	"github.com/findy-network/findy-didcomm/agent/trans"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/golang/glog"
)

// DefaultSchemes is the outbound transport priority when nothing is
// configured. Duplex transports come first.
var DefaultSchemes = []string{"wss", "ws", "https", "http"}

// Config of the Dispatcher. Contexts and Handlers are mandatory.
type Config struct {
	Contexts agency.ContextResolver
	Handlers HandlerLookup
	Sessions *trans.Registry
	Metrics  *metrics.Metrics

	// Schemes is the outbound transport priority. Nil means
	// utils.Settings.TransportSchemes and then DefaultSchemes.
	Schemes []string
}

// Dispatcher runs the inbound and outbound pipelines.
type Dispatcher struct {
	contexts agency.ContextResolver
	handlers HandlerLookup
	sessions *trans.Registry
	metrics  *metrics.Metrics
	schemes  []string

	// events emitted before an agent context is known
	events *bus.Bus

	threads utils.KeyedMutex

	// onStage follows the pipeline, set by tests
	onStage func(id string, s Stage)

	lk      sync.RWMutex
	senders map[string]Sender
	queuer  Queuer
}

// NewDispatcher creates the dispatcher with the HTTP senders installed.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		contexts: cfg.Contexts,
		handlers: cfg.Handlers,
		sessions: cfg.Sessions,
		metrics:  cfg.Metrics,
		schemes:  cfg.Schemes,
		events:   bus.New(""),
		senders:  make(map[string]Sender),
	}
	if d.sessions == nil {
		d.sessions = trans.NewRegistry()
	}
	if d.metrics == nil {
		d.metrics = metrics.Default()
	}
	if d.schemes == nil {
		d.schemes = utils.Settings.TransportSchemes()
	}
	if d.schemes == nil {
		d.schemes = DefaultSchemes
	}
	httpSender := NewHTTPSender(d)
	d.senders["http"] = httpSender
	d.senders["https"] = httpSender
	return d
}

// SetSender installs the sender for the URI scheme, e.g. "ws".
func (d *Dispatcher) SetSender(scheme string, s Sender) {
	d.lk.Lock()
	defer d.lk.Unlock()
	d.senders[strings.ToLower(scheme)] = s
}

// SetQueuer installs the mediator queue. Without it the queue path is off.
func (d *Dispatcher) SetQueuer(q Queuer) {
	d.lk.Lock()
	defer d.lk.Unlock()
	d.queuer = q
}

// Sessions returns the session registry of the dispatcher.
func (d *Dispatcher) Sessions() *trans.Registry {
	return d.sessions
}

// Events returns the bus of the events which have no agent context, e.g.
// rejected and undecryptable envelopes.
func (d *Dispatcher) Events() *bus.Bus {
	return d.events
}

func (d *Dispatcher) sender(endpoint string) (Sender, bool) {
	d.lk.RLock()
	defer d.lk.RUnlock()
	s, ok := d.senders[scheme(endpoint)]
	return s, ok
}

func (d *Dispatcher) queue() Queuer {
	d.lk.RLock()
	defer d.lk.RUnlock()
	return d.queuer
}

func (d *Dispatcher) emit(agent *agency.Context, e bus.Event) {
	if agent != nil {
		e.ContextID = agent.ID
		agent.Bus.Emit(e)
		return
	}
	d.events.Emit(e)
}

func (d *Dispatcher) stage(id string, s Stage) {
	if id == "" {
		glog.V(3).Infoln("inbound:", s)
	} else {
		glog.V(3).Infof("msg %s: %s", id, s)
	}
	if d.onStage != nil {
		d.onStage(id, s)
	}
}

func scheme(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
