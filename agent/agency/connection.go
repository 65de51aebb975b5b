package agency

import (
	"context"
	"errors"
	"sync"

	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/findy-network/findy-didcomm/std/decorator"
)

// ErrConnectionNotFound is returned when no connection owns the key.
var ErrConnectionNotFound = errors.New("connection not found")

// Connection is the pairwise relationship as the transport layer sees it.
// It's created by the connection protocols which are outside of this module.
type Connection struct {
	ID         string
	TheirLabel string

	// OurKey is the verkey we use in this connection.
	OurKey string

	// TheirKeys are the recipient keys of the other end.
	TheirKeys []string

	// Services in the priority order of the other end. The queue service
	// (didcomm:transport/queue) means that they pick messages up from us.
	Services []decorator.Service
}

// HasQueueService tells if the other end polls its messages from us.
func (c *Connection) HasQueueService() bool {
	for _, s := range c.Services {
		if s.ServiceEndpoint == pltype.QueueScheme {
			return true
		}
	}
	return false
}

// RecipientKeys returns their keys and the recipient keys of their services
// without duplicates.
func (c *Connection) RecipientKeys() []string {
	keys := make([]string, 0, len(c.TheirKeys))
	seen := make(map[string]struct{})
	add := func(k string) {
		if k == "" {
			return
		}
		if nk, err := sec.NormalizeKey(k); err == nil {
			k = nk
		}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for _, k := range c.TheirKeys {
		add(k)
	}
	for _, s := range c.Services {
		for _, k := range s.RecipientKeys {
			add(k)
		}
	}
	return keys
}

// ConnectionResolver finds connections by the keys of a message.
type ConnectionResolver interface {
	// FindByKeys returns the connection where recipientKey is ours and
	// senderKey is theirs. Not found is (nil, nil).
	FindByKeys(ctx context.Context, senderKey, recipientKey string) (*Connection, error)

	// ConnectionByRecipientKey returns the connection which the key routes
	// to. The mediator uses it for the forward messages.
	ConnectionByRecipientKey(ctx context.Context, key string) (*Connection, error)
}

// MemResolver is an in-memory ConnectionResolver.
type MemResolver struct {
	lk      sync.RWMutex
	conns   map[string]*Connection
	routing map[string]string // mediated recipient key -> connection ID
}

var _ ConnectionResolver = (*MemResolver)(nil)

func NewMemResolver() *MemResolver {
	return &MemResolver{
		conns:   make(map[string]*Connection),
		routing: make(map[string]string),
	}
}

// Add adds or replaces the connection.
func (r *MemResolver) Add(c *Connection) {
	r.lk.Lock()
	defer r.lk.Unlock()
	r.conns[c.ID] = c
}

// AddRoutingKey registers a recipient key mediated for the connection, i.e.
// forward messages for the key are queued to the connection.
func (r *MemResolver) AddRoutingKey(connID, key string) {
	if nk, err := sec.NormalizeKey(key); err == nil {
		key = nk
	}
	r.lk.Lock()
	defer r.lk.Unlock()
	r.routing[key] = connID
}

func (r *MemResolver) Connection(id string) (*Connection, bool) {
	r.lk.RLock()
	defer r.lk.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *MemResolver) FindByKeys(_ context.Context, senderKey, recipientKey string) (*Connection, error) {
	r.lk.RLock()
	defer r.lk.RUnlock()

	for _, c := range r.conns {
		if c.OurKey != recipientKey {
			continue
		}
		for _, k := range c.RecipientKeys() {
			if k == senderKey {
				return c, nil
			}
		}
	}
	return nil, nil
}

func (r *MemResolver) ConnectionByRecipientKey(_ context.Context, key string) (*Connection, error) {
	if nk, err := sec.NormalizeKey(key); err == nil {
		key = nk
	}

	r.lk.RLock()
	defer r.lk.RUnlock()

	if id, ok := r.routing[key]; ok {
		if c, ok := r.conns[id]; ok {
			return c, nil
		}
	}
	for _, c := range r.conns {
		for _, k := range c.RecipientKeys() {
			if k == key {
				return c, nil
			}
		}
	}
	return nil, ErrConnectionNotFound
}
