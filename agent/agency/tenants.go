package agency

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// Tenants is the ContextResolver of a multi-tenant agency. The first added
// context is the default one, which receives the plaintext messages that
// carry no keys.
type Tenants struct {
	sync.RWMutex
	m     map[string]*Context
	order []string
}

var _ ContextResolver = (*Tenants)(nil)

func NewTenants(ctxs ...*Context) *Tenants {
	t := &Tenants{m: make(map[string]*Context)}
	for _, c := range ctxs {
		t.Add(c)
	}
	return t
}

func (t *Tenants) Add(c *Context) {
	t.Lock()
	defer t.Unlock()

	if _, exists := t.m[c.ID]; !exists {
		t.order = append(t.order, c.ID)
	}
	t.m[c.ID] = c
	glog.V(3).Infoln("agent context added:", c.ID)
}

// Remove removes and closes the context.
func (t *Tenants) Remove(id string) {
	t.Lock()
	c, ok := t.m[id]
	if ok {
		delete(t.m, id)
		for i, o := range t.order {
			if o == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
	t.Unlock()

	if ok {
		c.Close()
	}
}

func (t *Tenants) Get(id string) (*Context, bool) {
	t.RLock()
	defer t.RUnlock()
	c, ok := t.m[id]
	return c, ok
}

// Default returns the first context, or nil if there are none.
func (t *Tenants) Default() *Context {
	t.RLock()
	defer t.RUnlock()
	if len(t.order) == 0 {
		return nil
	}
	return t.m[t.order[0]]
}

// ResolveContext returns the first context in the add order which owns one
// of the kids. Without kids the default context is returned.
func (t *Tenants) ResolveContext(_ context.Context, recipientKids []string) (*Context, error) {
	if len(recipientKids) == 0 {
		if d := t.Default(); d != nil {
			return d, nil
		}
		return nil, ErrNoContext
	}

	t.RLock()
	defer t.RUnlock()

	for _, id := range t.order {
		if c := t.m[id]; c.Owns(recipientKids...) {
			return c, nil
		}
	}
	return nil, ErrNoContext
}

// Close closes all the contexts.
func (t *Tenants) Close() {
	t.Lock()
	ctxs := make([]*Context, 0, len(t.m))
	for _, c := range t.m {
		ctxs = append(ctxs, c)
	}
	t.m = make(map[string]*Context)
	t.order = nil
	t.Unlock()

	for _, c := range ctxs {
		c.Close()
	}
}
