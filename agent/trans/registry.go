package trans

import (
	"sync"

	"github.com/golang/glog"
)

// Entry is a snapshot of a registered session and its bindings.
type Entry struct {
	Session

	// TheirKeys are the keys this session answers for, i.e. the keys of
	// the other end that we can pack the outbound messages to.
	TheirKeys []string

	// OurKey is the key the other end used to reach us thru this session.
	OurKey string

	ConnectionID string

	// Threads limit the replies the session carries to these threads.
	// Empty means every thread.
	Threads []string
}

// Serves tells if the replies of the thread may go thru the session.
func (e *Entry) Serves(threadID string) bool {
	return len(e.Threads) == 0 || contains(e.Threads, threadID)
}

type entry struct {
	session    Session
	theirKeys  []string
	ourKey     string
	connID     string
	threads    []string
	allThreads bool
}

func (e *entry) snapshot() *Entry {
	keys := make([]string, len(e.theirKeys))
	copy(keys, e.theirKeys)
	var threads []string
	if len(e.threads) > 0 {
		threads = make([]string, len(e.threads))
		copy(threads, e.threads)
	}
	return &Entry{
		Session:      e.session,
		TheirKeys:    keys,
		OurKey:       e.ourKey,
		ConnectionID: e.connID,
		Threads:      threads,
	}
}

// Registry tracks open sessions by id and binds them to keys and
// connections. A key or connection binds to at most one session at a time,
// and a later bind supersedes the earlier one.
type Registry struct {
	lk       sync.RWMutex
	sessions map[string]*entry
	byKey    map[string]string
	byConn   map[string]string
	onRemove []func(e *Entry)
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		byKey:    make(map[string]string),
		byConn:   make(map[string]string),
	}
}

// OnRemove adds a hook called after a session is removed.
func (r *Registry) OnRemove(f func(e *Entry)) {
	r.lk.Lock()
	defer r.lk.Unlock()
	r.onRemove = append(r.onRemove, f)
}

// Register adds the session. Registering the same id again is a no-op.
func (r *Registry) Register(s Session) {
	r.lk.Lock()
	defer r.lk.Unlock()
	r.register(s)
}

func (r *Registry) register(s Session) *entry {
	e, ok := r.sessions[s.ID()]
	if !ok {
		e = &entry{session: s}
		r.sessions[s.ID()] = e
		glog.V(4).Infoln("session registered:", s.ID(), s.Type())
	}
	return e
}

// Bind binds their key to the session, and records the key we answer as.
// The session is registered if it wasn't.
func (r *Registry) Bind(s Session, theirKey, ourKey string) {
	r.lk.Lock()
	defer r.lk.Unlock()

	e := r.register(s)
	if ourKey != "" {
		e.ourKey = ourKey
	}
	if theirKey == "" {
		return
	}
	if prev, ok := r.byKey[theirKey]; ok && prev != s.ID() {
		glog.V(3).Infoln("key binding superseded:", prev, "->", s.ID())
		if pe, ok := r.sessions[prev]; ok {
			pe.theirKeys = without(pe.theirKeys, theirKey)
		}
	}
	r.byKey[theirKey] = s.ID()
	if !contains(e.theirKeys, theirKey) {
		e.theirKeys = append(e.theirKeys, theirKey)
	}
}

// RouteThread records the thread whose replies the session may carry, the
// return route "thread" mode. An empty threadID opens the session for every
// thread, and after that the thread limits are ignored.
func (r *Registry) RouteThread(s Session, threadID string) {
	r.lk.Lock()
	defer r.lk.Unlock()

	e := r.register(s)
	switch {
	case threadID == "":
		e.allThreads = true
		e.threads = nil
	case !e.allThreads && !contains(e.threads, threadID):
		e.threads = append(e.threads, threadID)
	}
}

// BindConnection binds the connection to the session. The session is
// registered if it wasn't.
func (r *Registry) BindConnection(s Session, connID string) {
	if connID == "" {
		return
	}
	r.lk.Lock()
	defer r.lk.Unlock()

	e := r.register(s)
	if prev, ok := r.byConn[connID]; ok && prev != s.ID() {
		if pe, ok := r.sessions[prev]; ok && pe.connID == connID {
			pe.connID = ""
		}
	}
	r.byConn[connID] = s.ID()
	e.connID = connID
}

// Remove removes the session and all the bindings still pointing to it.
// Bindings superseded by other sessions are left intact. The session isn't
// closed, that's the transport's job.
func (r *Registry) Remove(id string) {
	r.lk.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.lk.Unlock()
		return
	}
	delete(r.sessions, id)
	for k, sid := range r.byKey {
		if sid == id {
			delete(r.byKey, k)
		}
	}
	for c, sid := range r.byConn {
		if sid == id {
			delete(r.byConn, c)
		}
	}
	hooks := r.onRemove
	snap := e.snapshot()
	r.lk.Unlock() // hooks may call the registry

	glog.V(4).Infoln("session removed:", id)
	for _, f := range hooks {
		f(snap)
	}
}

// FindByID returns the session entry.
func (r *Registry) FindByID(id string) (*Entry, bool) {
	r.lk.RLock()
	defer r.lk.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.snapshot(), true
}

// FindByConnectionID returns the session currently bound to the connection.
func (r *Registry) FindByConnectionID(connID string) (*Entry, bool) {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return r.find(r.byConn, connID)
}

// FindByKey returns the session currently bound to their key.
func (r *Registry) FindByKey(key string) (*Entry, bool) {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return r.find(r.byKey, key)
}

func (r *Registry) find(m map[string]string, k string) (*Entry, bool) {
	id, ok := m[k]
	if !ok {
		return nil, false
	}
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.snapshot(), true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return len(r.sessions)
}

func contains(keys []string, k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

func without(keys []string, k string) []string {
	res := keys[:0]
	for _, key := range keys {
		if key != k {
			res = append(res, key)
		}
	}
	return res
}
