/*
Package bus is the event bus of an agent context. Every agency.Context owns
one Bus which is opened with the context and closed at its teardown. The
dispatcher, the forward queue and the protocol handlers emit events to it, and
controllers listen them.
*/
package bus

import (
	"sync"

	"github.com/golang/glog"
	"github.com/lainio/err2/assert"
)

// ListenerBufSize is the buffer size of the listener channels.
const ListenerBufSize = 32

type EventChan chan Event

type listener struct {
	ch    EventChan
	types map[EventType]struct{}
}

func (l *listener) wants(t EventType) bool {
	if len(l.types) == 0 {
		return true
	}
	_, ok := l.types[t]
	return ok
}

type Bus struct {
	contextID string

	lk        sync.Mutex
	listeners map[string]*listener
	closed    bool
}

func New(contextID string) *Bus {
	return &Bus{
		contextID: contextID,
		listeners: make(map[string]*listener),
	}
}

// AddListener adds a listener by the key. If no types are given the
// listener gets all the events.
func (b *Bus) AddListener(key string, types ...EventType) <-chan Event {
	b.lk.Lock()
	defer b.lk.Unlock()

	_, alreadyExists := b.listeners[key]
	assert.That(!alreadyExists, "key: %s, already exists", key)

	l := &listener{ch: make(EventChan, ListenerBufSize)}
	if len(types) > 0 {
		l.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			l.types[t] = struct{}{}
		}
	}
	if b.closed {
		close(l.ch)
		return l.ch
	}
	b.listeners[key] = l
	glog.V(4).Infoln(b.contextID, "listener ADD:", key)
	return l.ch
}

// RmListener removes the listener and closes its channel.
func (b *Bus) RmListener(key string) {
	b.lk.Lock()
	defer b.lk.Unlock()

	if l, ok := b.listeners[key]; ok {
		close(l.ch)
		delete(b.listeners, key)
		glog.V(4).Infoln(b.contextID, "listener RM:", key)
	}
}

// Emit broadcasts the event to the listeners. Emit never blocks: if a
// listener's buffer is full the event is dropped for that listener.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	e.ContextID = b.contextID

	b.lk.Lock()
	defer b.lk.Unlock()

	if b.closed {
		return
	}
	for key, l := range b.listeners {
		if !l.wants(e.Type) {
			continue
		}
		select {
		case l.ch <- e:
		default:
			glog.Warningf("%s: listener %s is full, dropping %s", b.contextID, key, e.Type)
		}
	}
}

// Close closes all the listener channels. Events emitted after Close are
// discarded.
func (b *Bus) Close() {
	b.lk.Lock()
	defer b.lk.Unlock()

	if b.closed {
		return
	}
	for key, l := range b.listeners {
		select {
		case l.ch <- Event{Type: ContextClosed, ContextID: b.contextID}:
		default:
		}
		close(l.ch)
		delete(b.listeners, key)
	}
	b.closed = true
}
