/*
Package trans is the transport session registry. A session is a duplex
channel owned by a transport adapter, e.g. an HTTP request waiting for its
response or an open WebSocket. The registry keeps lookup references to the
sessions so that outbound messages can be returned over them instead of
opening a new connection.
*/
package trans

import (
	"context"
	"errors"
	"sync"

	"github.com/findy-network/findy-didcomm/agent/utils"
)

// Session types
const (
	TypeHTTP = "http"
	TypeWS   = "ws"
	TypeFunc = "func"
)

// ErrSessionClosed is returned when sending to a closed session.
var ErrSessionClosed = errors.New("session closed")

// Session is the transport adapter's duplex channel.
type Session interface {
	ID() string
	Type() string
	Send(ctx context.Context, data []byte) error
	Close() error
}

// FuncSession is a session which sends with a function. It's used for
// in-process transports and tests.
type FuncSession struct {
	id     string
	typ    string
	send   func(ctx context.Context, data []byte) error
	lk     sync.Mutex
	closed bool
}

func NewFuncSession(typ string, send func(ctx context.Context, data []byte) error) *FuncSession {
	if typ == "" {
		typ = TypeFunc
	}
	return &FuncSession{id: utils.UUID(), typ: typ, send: send}
}

func (s *FuncSession) ID() string {
	return s.id
}

func (s *FuncSession) Type() string {
	return s.typ
}

func (s *FuncSession) Send(ctx context.Context, data []byte) error {
	s.lk.Lock()
	closed := s.closed
	s.lk.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return s.send(ctx, data)
}

func (s *FuncSession) Close() error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.closed = true
	return nil
}
