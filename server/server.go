/*
Package server encapsulates the http server entry points of the DIDComm
transport: the HTTP inbound endpoint, the websocket endpoint, and the version
and metrics endpoints.

The HTTP endpoint is a request/response session. If the received message asks
return routing, the reply is written to the response body. The websocket
endpoint keeps the session open until the other end closes it.
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/packager"
	"github.com/findy-network/findy-didcomm/agent/trans"
	"github.com/findy-network/findy-didcomm/agent/txp"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

// MaxBodySize is the max size of the inbound HTTP message.
const MaxBodySize = 4 << 20

type Config struct {
	// Port to listen.
	Port uint

	// ServiceName is the path of the HTTP endpoint, WsServiceName of the
	// websocket endpoint.
	ServiceName   string
	WsServiceName string

	// RateLimit is the inbound requests per second. Zero means no limit.
	RateLimit float64
	Burst     int
}

type Server struct {
	cfg     Config
	d       *comm.Dispatcher
	limiter *rate.Limiter
	srv     *http.Server
}

func New(cfg Config, d *comm.Dispatcher) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = utils.Settings.ServiceName()
	}
	if cfg.WsServiceName == "" {
		cfg.WsServiceName = utils.Settings.WsServiceName()
	}
	s := &Server{cfg: cfg, d: d}
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Handler builds the mux of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	// both /name and /name/..., a redirect would turn the POST to GET
	for _, p := range []string{"/%s", "/%s/"} {
		mux.HandleFunc(fmt.Sprintf(p, s.cfg.ServiceName), s.limit(s.protocolTransport))
		mux.HandleFunc(fmt.Sprintf(p, s.cfg.WsServiceName), s.limit(s.websocketTransport))
	}
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		glog.V(5).Info("/version requested")
		_, _ = w.Write([]byte(utils.Version))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		glog.V(7).Infoln("testing the server", r.URL.Path)
		_, _ = w.Write([]byte(utils.Version))
	})
	return mux
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%v", s.cfg.Port),
		Handler: s.Handler(),
	}
	glog.V(1).Info(utils.Settings.VersionInfo())
	glog.V(1).Infof("HTTP Server on port: %v, endpoints: /%s/ /%s/",
		s.cfg.Port, s.cfg.ServiceName, s.cfg.WsServiceName)

	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) limit(h http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			glog.V(2).Infoln("rate limited:", r.RemoteAddr)
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		h(w, r)
	}
}

func errorResponse(w http.ResponseWriter, status int) {
	glog.V(2).Info("Returning ", status)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(fmt.Sprintf("%d - Error", status)))
}

func acceptedContentType(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == packager.MediaType || mt == packager.LegacyMediaType
}

func (s *Server) protocolTransport(w http.ResponseWriter, r *http.Request) {
	defer err2.Catch(err2.Err(func(err error) {
		glog.Error("error:", err)
		errorResponse(w, http.StatusInternalServerError)
	}))

	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed)
		return
	}
	if !acceptedContentType(r) {
		errorResponse(w, http.StatusUnsupportedMediaType)
		return
	}
	glog.V(1).Infoln("===== Aries TRANSPORT =====", r.URL.Path)

	data := try.To1(io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize)))

	session := newHTTPSession()
	err := s.d.HandleInbound(r.Context(), data, session)
	s.d.Sessions().Remove(session.ID())
	_ = session.Close()

	switch {
	case errors.Is(err, packager.ErrEnvelopeDecryption),
		errors.Is(err, comm.ErrInvalidMessage):
		glog.Warningln("inbound:", err)
		errorResponse(w, http.StatusBadRequest)
		return
	case err != nil:
		// the message was received, the failure is ours
		glog.Warningln("inbound handling:", err)
	}

	if resp := session.response(); resp != nil {
		w.Header().Set("Content-Type", packager.MediaType)
		_, _ = w.Write(resp)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) websocketTransport(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		glog.Warningln("ws accept:", err)
		return
	}
	session := txp.NewSession(conn)
	defer session.Close()

	if err := txp.Serve(r.Context(), session, s.d); err != nil {
		glog.V(1).Infoln("ws session:", err)
	}
}

// httpSession captures the return routed reply of an HTTP request. Only one
// message fits to the response.
type httpSession struct {
	id string

	lk     sync.Mutex
	data   []byte
	closed bool
}

var errResponded = errors.New("http response already written")

func newHTTPSession() *httpSession {
	return &httpSession{id: utils.UUID()}
}

func (s *httpSession) ID() string {
	return s.id
}

func (s *httpSession) Type() string {
	return trans.TypeHTTP
}

func (s *httpSession) Send(_ context.Context, data []byte) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.closed {
		return trans.ErrSessionClosed
	}
	if s.data != nil {
		return errResponded
	}
	s.data = data
	return nil
}

func (s *httpSession) Close() error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.closed = true
	return nil
}

func (s *httpSession) response() []byte {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.data
}
