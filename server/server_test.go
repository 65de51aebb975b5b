package server

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/findy-network/findy-didcomm/agent/agency"
	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/didcomm"
	"github.com/findy-network/findy-didcomm/agent/metrics"
	"github.com/findy-network/findy-didcomm/agent/packager"
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/prot"
	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/std/common"
	"github.com/findy-network/findy-didcomm/std/decorator"
	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMain(m *testing.M) {
	setUp()
	code := m.Run()
	os.Exit(code)
}

func setUp() {
	try.To(flag.Set("logtostderr", "true"))
	try.To(flag.Set("stderrthreshold", "WARNING"))
	try.To(flag.Set("v", "10"))
	flag.Parse()
}

type fixture struct {
	ts       *httptest.Server
	client   *packager.Packager
	ourKey   string
	theirKey string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	serverKS, clientKS := sec.NewMemKeyStore(), sec.NewMemKeyStore()
	f := &fixture{
		client:   packager.New(sec.New(clientKS)),
		ourKey:   try.To1(clientKS.Create()),
		theirKey: try.To1(serverKS.Create()),
	}
	conns := agency.NewMemResolver()
	conns.Add(&agency.Connection{ID: "c1", OurKey: f.theirKey, TheirKeys: []string{f.ourKey}})
	a := agency.NewContext("server", "server", serverKS, conns, "http://server")
	t.Cleanup(a.Close)

	reg := prot.NewRegistry()
	prot.RegisterTrustPing(reg)
	d := comm.NewDispatcher(comm.Config{
		Contexts: agency.NewTenants(a),
		Handlers: reg,
		Metrics:  metrics.NewMetricsWithRegistry(prometheus.NewRegistry()),
	})

	cfg.ServiceName, cfg.WsServiceName = "a2a", "ws"
	f.ts = httptest.NewServer(New(cfg, d).Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) ping(returnRoute bool) []byte {
	msg := try.To1(didcomm.NewMsg(common.NewPing(true)))
	if returnRoute {
		msg.SetReturnRoute(decorator.ReturnRouteAll)
	}
	return try.To1(f.client.PackJSON(msg.JSON(), packager.Keys{
		RecipientKeys: []string{f.theirKey},
		SenderKey:     f.ourKey,
	}))
}

func (f *fixture) post(contentType string, body []byte) *http.Response {
	resp := try.To1(http.Post(f.ts.URL+"/a2a/", contentType, bytes.NewReader(body)))
	return resp
}

func TestProtocolTransport_ReturnRoute(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	f := newFixture(t, Config{})

	resp := f.post(packager.MediaType, f.ping(true))
	defer resp.Body.Close()
	assert.Equal(resp.StatusCode, http.StatusOK)
	assert.Equal(resp.Header.Get("Content-Type"), packager.MediaType)

	dec := try.To1(f.client.UnpackJSON(try.To1(io.ReadAll(resp.Body))))
	msg := try.To1(didcomm.ParseMsg(dec.Plaintext))
	assert.Equal(msg.Type(), pltype.TrustPingResponse)
}

func TestProtocolTransport_NoReturnRoute(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	f := newFixture(t, Config{})

	// legacy media type and the endpoint path without the slash are
	// accepted, and the reply has no way back
	resp := try.To1(http.Post(f.ts.URL+"/a2a", packager.LegacyMediaType,
		bytes.NewReader(f.ping(false))))
	defer resp.Body.Close()
	assert.Equal(resp.StatusCode, http.StatusOK)
	body := try.To1(io.ReadAll(resp.Body))
	assert.SLen(body, 0)
}

func TestProtocolTransport_Errors(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	f := newFixture(t, Config{})

	resp := f.post("text/plain", f.ping(true))
	resp.Body.Close()
	assert.Equal(resp.StatusCode, http.StatusUnsupportedMediaType)

	resp = f.post(packager.MediaType, []byte("garbage"))
	resp.Body.Close()
	assert.Equal(resp.StatusCode, http.StatusBadRequest)

	resp = try.To1(http.Get(f.ts.URL + "/a2a/"))
	resp.Body.Close()
	assert.Equal(resp.StatusCode, http.StatusMethodNotAllowed)
}

func TestRateLimit(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	f := newFixture(t, Config{RateLimit: 0.001, Burst: 1})

	resp := f.post(packager.MediaType, f.ping(false))
	resp.Body.Close()
	assert.Equal(resp.StatusCode, http.StatusOK)

	resp = f.post(packager.MediaType, f.ping(false))
	resp.Body.Close()
	assert.Equal(resp.StatusCode, http.StatusTooManyRequests)
}

func TestVersionAndMetrics(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	f := newFixture(t, Config{})

	resp := try.To1(http.Get(f.ts.URL + "/version"))
	body := try.To1(io.ReadAll(resp.Body))
	resp.Body.Close()
	assert.Equal(string(body), utils.Version)

	resp = try.To1(http.Get(f.ts.URL + "/metrics"))
	resp.Body.Close()
	assert.Equal(resp.StatusCode, http.StatusOK)
}

func TestHTTPSession(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()

	s := newHTTPSession()
	assert.NoError(s.Send(ctx, []byte("first")))
	assert.Error(s.Send(ctx, []byte("second")))
	assert.Equal(string(s.response()), "first")
	assert.NoError(s.Close())
	assert.Error(s.Send(ctx, []byte("third")))
}
