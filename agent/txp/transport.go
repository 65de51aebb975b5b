/*
Package txp has the websocket transport. A websocket is a duplex session: it's
registered to the session registry when it opens, the inbound frames are fed
to the dispatcher, and outbound messages to the other end can be written to
it as long as it stays open. Both the accepting server side and the dialing
client side use the same Session.
*/
package txp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/trans"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"nhooyr.io/websocket"
)

// ReadLimit is the max size of an inbound frame. Pickup deliveries carry
// batches of envelopes, so the default of the library is too small.
const ReadLimit = 4 << 20

// Session is a websocket transport session.
type Session struct {
	id     string
	conn   *websocket.Conn
	closed atomic.Bool
}

var _ trans.Session = (*Session)(nil)

func NewSession(conn *websocket.Conn) *Session {
	conn.SetReadLimit(ReadLimit)
	return &Session{id: utils.UUID(), conn: conn}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Type() string {
	return trans.TypeWS
}

func (s *Session) Send(ctx context.Context, data []byte) error {
	if s.closed.Load() {
		return trans.ErrSessionClosed
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// Serve registers the session and feeds the frames to the dispatcher until
// the connection closes. Every frame is handled in its own goroutine, the
// dispatcher serializes the messages of the same thread. The session is
// removed from the registry after the running handlers have returned.
func Serve(ctx context.Context, s *Session, d *comm.Dispatcher) (err error) {
	registry := d.Sessions()
	registry.Register(s)

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		registry.Remove(s.ID())
		s.closed.Store(true)
		glog.V(3).Infoln("ws session closed:", s.ID())
	}()
	glog.V(3).Infoln("ws session opened:", s.ID())

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if isNormalClose(err) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer err2.Catch(err2.Err(func(err error) {
				glog.Errorf("ws session %s: %v", s.ID(), err)
			}))
			if err := d.HandleInbound(ctx, data, s); err != nil {
				glog.Warningf("ws session %s: %v", s.ID(), err)
			}
		}()
	}
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// Sender is the outbound websocket transport. It keeps one open session per
// endpoint, and the frames the other end sends back are handled by the
// dispatcher.
type Sender struct {
	d *comm.Dispatcher

	lk       sync.Mutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
}

var _ comm.Sender = (*Sender)(nil)

// NewSender creates the sender and installs it to the dispatcher for the ws
// and wss schemes.
func NewSender(d *comm.Dispatcher) *Sender {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sender{
		d:        d,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.SetSender("ws", s)
	d.SetSender("wss", s)
	return s
}

func (s *Sender) Send(ctx context.Context, endpoint string, data []byte) (err error) {
	defer err2.Handle(&err, "ws send %s", endpoint)

	session := try.To1(s.session(ctx, endpoint))
	if err := session.Send(ctx, data); err != nil {
		s.drop(endpoint, session)
		return err
	}
	return nil
}

func (s *Sender) session(ctx context.Context, endpoint string) (_ *Session, err error) {
	defer err2.Handle(&err)

	s.lk.Lock()
	defer s.lk.Unlock()

	if s.sessions == nil {
		return nil, errors.New("sender closed")
	}
	if session, ok := s.sessions[endpoint]; ok && !session.closed.Load() {
		return session, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, utils.Settings.Timeout())
	defer cancel()
	conn, _ := try.To2(websocket.Dial(dialCtx, endpoint, nil))

	session := NewSession(conn)
	s.sessions[endpoint] = session
	glog.V(1).Infoln("ws connected:", endpoint)

	go func() {
		if err := Serve(s.ctx, session, s.d); err != nil {
			glog.V(1).Infof("ws %s: %v", endpoint, err)
		}
		s.drop(endpoint, session)
	}()
	return session, nil
}

func (s *Sender) drop(endpoint string, session *Session) {
	_ = session.Close()
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.sessions[endpoint] == session {
		delete(s.sessions, endpoint)
	}
}

// Close closes all the sessions.
func (s *Sender) Close() {
	s.cancel()
	s.lk.Lock()
	sessions := s.sessions
	s.sessions = nil
	s.lk.Unlock()
	for _, session := range sessions {
		_ = session.Close()
	}
}
