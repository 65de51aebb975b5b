package mediator

import (
	"sync"

	"github.com/findy-network/findy-didcomm/agent/agency"
	"github.com/findy-network/findy-didcomm/agent/trans"
	"github.com/golang/glog"
)

// LiveTarget is where the live mode messages of a connection are pushed.
type LiveTarget struct {
	Agent      *agency.Context
	Connection *agency.Connection
	SessionID  string
}

// LiveSessions book-keeps the connections in live delivery mode. The mode
// ends when the recipient turns it off or its session is removed from the
// registry.
type LiveSessions struct {
	lk       sync.RWMutex
	m        map[string]LiveTarget
	registry *trans.Registry
}

// NewLiveSessions creates the book. With a registry the live mode is bound
// to the session's lifetime.
func NewLiveSessions(registry *trans.Registry) *LiveSessions {
	l := &LiveSessions{
		m:        make(map[string]LiveTarget),
		registry: registry,
	}
	if registry != nil {
		registry.OnRemove(l.sessionRemoved)
	}
	return l
}

func (l *LiveSessions) Start(connID string, t LiveTarget) {
	l.lk.Lock()
	defer l.lk.Unlock()
	l.m[connID] = t
	glog.V(3).Infoln("live mode on:", connID, t.SessionID)
}

func (l *LiveSessions) Stop(connID string) {
	l.lk.Lock()
	defer l.lk.Unlock()
	if _, ok := l.m[connID]; ok {
		delete(l.m, connID)
		glog.V(3).Infoln("live mode off:", connID)
	}
}

// Get returns the connection's target if it's in live mode and its session
// is still registered.
func (l *LiveSessions) Get(connID string) (LiveTarget, bool) {
	l.lk.RLock()
	t, ok := l.m[connID]
	l.lk.RUnlock()
	if !ok {
		return t, false
	}
	if l.registry != nil {
		if _, open := l.registry.FindByID(t.SessionID); !open {
			return t, false
		}
	}
	return t, true
}

// IsLive tells if the connection is in live mode.
func (l *LiveSessions) IsLive(connID string) bool {
	_, ok := l.Get(connID)
	return ok
}

func (l *LiveSessions) sessionRemoved(e *trans.Entry) {
	l.lk.Lock()
	defer l.lk.Unlock()
	for connID, t := range l.m {
		if t.SessionID == e.ID() {
			delete(l.m, connID)
			glog.V(3).Infoln("live mode ended with session:", connID)
		}
	}
}
