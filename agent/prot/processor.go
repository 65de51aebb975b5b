/*
Package prot is the protocol handler registry. The registry has two levels:
the first level has the protocols (doc URI, name and major version) and the
second the message handlers of the protocol. Protocols are registered
explicitly at startup, and the dispatcher looks the handlers up by the
parsed message type. The minor version doesn't take part in the lookup,
which gives the minor version tolerance of the DIDComm protocols.
*/
package prot

import (
	"fmt"
	"sort"
	"sync"

	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/didcomm"
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/golang/glog"
	"github.com/lainio/err2/assert"
)

// Protocol groups the handlers of one protocol version. Minor is the version
// we implement, it's reported by SupportedProtocols.
type Protocol struct {
	DocURI   string
	Name     string
	Major    int
	Minor    int
	Handlers map[string]comm.Handler
}

// URI returns the protocol URI <doc-uri>/<name>/<major>.<minor>.
func (p Protocol) URI() string {
	return fmt.Sprintf("%s/%s/%d.%d", p.DocURI, p.Name, p.Major, p.Minor)
}

type protoKey struct {
	docURI string
	name   string
	major  int
}

// Registry implements comm.HandlerLookup.
type Registry struct {
	lk        sync.RWMutex
	protocols map[protoKey]*Protocol
}

var _ comm.HandlerLookup = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{protocols: make(map[protoKey]*Protocol)}
}

// Register adds one message handler. The msgType must be a full message
// type URI, e.g. https://didcomm.org/routing/1.0/forward.
func (r *Registry) Register(msgType string, h comm.Handler) {
	t := didcomm.MustParseMsgType(msgType)
	r.RegisterProtocol(Protocol{
		DocURI:   t.DocURI,
		Name:     t.Protocol,
		Major:    t.Major,
		Minor:    t.Minor,
		Handlers: map[string]comm.Handler{t.Name: h},
	})
}

// RegisterFunc is Register for functions.
func (r *Registry) RegisterFunc(msgType string, f comm.HandlerFunc) {
	r.Register(msgType, f)
}

// RegisterProtocol adds the protocol's handlers. Handlers are merged to an
// already registered protocol version, and the higher minor wins.
func (r *Registry) RegisterProtocol(p Protocol) {
	assert.NotEmpty(p.Name)

	r.lk.Lock()
	defer r.lk.Unlock()

	k := protoKey{docURI: normalizeDoc(p.DocURI), name: p.Name, major: p.Major}
	existing, ok := r.protocols[k]
	if !ok {
		existing = &Protocol{
			DocURI:   k.docURI,
			Name:     p.Name,
			Major:    p.Major,
			Minor:    p.Minor,
			Handlers: make(map[string]comm.Handler),
		}
		r.protocols[k] = existing
	}
	if p.Minor > existing.Minor {
		existing.Minor = p.Minor
	}
	for name, h := range p.Handlers {
		if _, dup := existing.Handlers[name]; dup {
			glog.Warningf("handler %s/%s replaced", existing.URI(), name)
		}
		existing.Handlers[name] = h
	}
	glog.V(3).Infoln("protocol registered:", existing.URI())
}

func normalizeDoc(docURI string) string {
	if docURI == pltype.Aries {
		return pltype.DIDOrg
	}
	return docURI
}

// Lookup returns the handler for the message type. The minor version is
// ignored.
func (r *Registry) Lookup(t didcomm.MsgType) (comm.Handler, bool) {
	r.lk.RLock()
	defer r.lk.RUnlock()

	p, ok := r.protocols[protoKey{docURI: t.DocURI, name: t.Protocol, major: t.Major}]
	if !ok {
		return nil, false
	}
	h, ok := p.Handlers[t.Name]
	return h, ok
}

// SupportedProtocols lists the registered protocol URIs in sorted order.
func (r *Registry) SupportedProtocols() []string {
	r.lk.RLock()
	defer r.lk.RUnlock()

	uris := make([]string, 0, len(r.protocols))
	for _, p := range r.protocols {
		uris = append(uris, p.URI())
	}
	sort.Strings(uris)
	return uris
}
