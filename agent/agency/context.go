/*
Package agency offers the multi-tenant services of the DIDComm engine. Every
tenant, i.e. agent, has its own Context carrying its keys, connections and
event bus. The Dispatcher resolves the Context of an inbound envelope from
its recipient key ids before anything is decrypted.
*/
package agency

import (
	"context"
	"errors"
	"sync"

	"github.com/findy-network/findy-didcomm/agent/bus"
	"github.com/findy-network/findy-didcomm/agent/packager"
	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/golang/glog"
)

// ErrNoContext is returned when none of the tenants owns the keys.
var ErrNoContext = errors.New("no agent context for the keys")

// Context is one agent's runtime context.
type Context struct {
	ID    string
	Label string

	Packager    *packager.Packager
	Keys        sec.KeyStore
	Connections ConnectionResolver
	Bus         *bus.Bus

	// Endpoint is our inbound endpoint. Empty means that we can receive only
	// over return routed sessions.
	Endpoint string

	closeOnce sync.Once
}

// NewContext builds the agent context. Use Close to tear it down.
func NewContext(id, label string, keys sec.KeyStore, conns ConnectionResolver, endpoint string) *Context {
	return &Context{
		ID:          id,
		Label:       label,
		Packager:    packager.New(sec.New(keys)),
		Keys:        keys,
		Connections: conns,
		Bus:         bus.New(id),
		Endpoint:    endpoint,
	}
}

// Owns tells if any of the keys is ours.
func (c *Context) Owns(keys ...string) bool {
	for _, k := range keys {
		nk, err := sec.NormalizeKey(k)
		if err != nil {
			continue
		}
		if c.Keys.Has(nk) {
			return true
		}
	}
	return false
}

// Close tears down the context's event bus. It's safe to call many times.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		glog.V(3).Infoln("closing agent context", c.ID)
		c.Bus.Close()
	})
}

// ContextResolver finds the agent context of an inbound message.
type ContextResolver interface {
	ResolveContext(ctx context.Context, recipientKids []string) (*Context, error)
}
