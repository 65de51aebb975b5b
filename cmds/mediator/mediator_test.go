package mediator

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/findy-network/findy-didcomm/agent/agency"
	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/lainio/err2/try"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "000000000000000000000000Mediator"

var (
	aliceKey, aliceRouting string
	connectionsYAML        string
)

func TestMain(m *testing.M) {
	setUp()
	code := m.Run()
	os.Exit(code)
}

func setUp() {
	_ = flag.Set("logtostderr", "true")
	_ = flag.Set("stderrthreshold", "WARNING")
	_ = flag.Set("v", "0")

	ks := sec.NewMemKeyStore()
	aliceKey = try.To1(ks.Create())
	aliceRouting = try.To1(ks.Create())
	connectionsYAML = fmt.Sprintf(`
logging: "-logtostderr=true"
connections:
  - id: alice
    label: Alice
    their-keys: [%[1]s]
    services:
      - endpoint: didcomm:transport/queue
        recipient-keys: [%[1]s]
    mediated-keys: [%[2]s]
`, aliceKey, aliceRouting)
}

func testCmd(t *testing.T) *Cmd {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "mediator.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(connectionsYAML), 0600))

	c := DefaultValues
	c.EnclavePath = filepath.Join(dir, "enclave.bolt")
	c.QueueDB = filepath.Join(dir, "queue")
	c.Seed = testSeed
	c.ConfigFile = cfgFile
	c.VersionInfo = "test"
	return &c
}

func TestCmd_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Cmd)
		ok     bool
	}{
		{"defaults", func(*Cmd) {}, true},
		{"no service name", func(c *Cmd) { c.ServiceName = "" }, false},
		{"same service names", func(c *Cmd) { c.WsServiceName = c.ServiceName }, false},
		{"no host", func(c *Cmd) { c.HostAddr = "" }, false},
		{"no port", func(c *Cmd) { c.ServerPort = 0 }, false},
		{"no queue db", func(c *Cmd) { c.QueueDB = "" }, false},
		{"zero timeout", func(c *Cmd) { c.Timeout = 0 }, false},
		{"zero in-flight", func(c *Cmd) { c.InflightTimeout = 0 }, false},
		{"zero revert", func(c *Cmd) { c.RevertInterval = 0 }, false},
		{"zero batch", func(c *Cmd) { c.MaxBatch = 0 }, false},
		{"bad seed", func(c *Cmd) { c.Seed = "short" }, false},
		{"schemes", func(c *Cmd) { c.TransportSchemes = []string{"ws", "http"} }, true},
		{"unknown scheme", func(c *Cmd) { c.TransportSchemes = []string{"smtp"} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultValues
			tt.modify(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCmd_Endpoint(t *testing.T) {
	c := DefaultValues
	c.HostAddr = "mediator.example.com"
	c.HostScheme = "https"
	c.HostPort = 443
	assert.Equal(t, "https://mediator.example.com:443/a2a", c.Endpoint())

	c.HostPort = 0
	c.ServerPort = 9090
	assert.Equal(t, "https://mediator.example.com:9090/a2a", c.Endpoint())
}

func TestReadConnections(t *testing.T) {
	seeds, err := ReadConnections(strings.NewReader(connectionsYAML))
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, "alice", seeds[0].ID)
	assert.Equal(t, []string{aliceRouting}, seeds[0].MediatedKeys)
	require.Len(t, seeds[0].Services, 1)
	assert.Equal(t, "didcomm:transport/queue", seeds[0].Services[0].Endpoint)

	seeds, err = ReadConnections(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, seeds)

	seeds, err = ReadConnectionsFile("")
	require.NoError(t, err)
	assert.Nil(t, seeds)

	_, err = ReadConnectionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeedResolver(t *testing.T) {
	seeds, err := ReadConnections(strings.NewReader(connectionsYAML))
	require.NoError(t, err)

	r := agency.NewMemResolver()
	SeedResolver(r, "ourKey", seeds)

	c, ok := r.Connection("alice")
	require.True(t, ok)
	assert.Equal(t, "ourKey", c.OurKey)
	assert.True(t, c.HasQueueService())

	ctx := context.Background()
	c, err = r.ConnectionByRecipientKey(ctx, aliceRouting)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.ID)

	didKey, err := sec.DIDKey(aliceRouting)
	require.NoError(t, err)
	c, err = r.ConnectionByRecipientKey(ctx, didKey)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.ID)
}

func TestCmd_Setup(t *testing.T) {
	c := testCmd(t)
	require.NoError(t, c.Validate())
	c.PreRun()
	require.NoError(t, c.Setup())
	defer c.Close()

	want, err := sec.NewMemKeyStore().Import([]byte(testSeed))
	require.NoError(t, err)
	assert.Equal(t, want, c.Key())
	assert.True(t, c.Agent().Owns(want))
	assert.Equal(t, c.Endpoint(), c.Agent().Endpoint)
	assert.NotNil(t, c.Dispatcher())

	protocols := c.rt.registry.SupportedProtocols()
	assert.Contains(t, protocols, "https://didcomm.org/messagepickup/2.0")
	assert.Contains(t, protocols, "https://didcomm.org/routing/1.0")
	assert.Contains(t, protocols, "https://didcomm.org/trust_ping/1.0")

	n, err := c.Queue().Status(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 30*time.Second, utils.Settings.InflightTimeout())

	ts := httptest.NewServer(c.rt.server.Handler())
	defer ts.Close()

	var buf bytes.Buffer
	ping := PingCmd{BaseAddr: ts.URL}
	require.NoError(t, ping.Validate())
	r, err := ping.Exec(&buf)
	require.NoError(t, err)
	assert.Equal(t, utils.Version, r.(PingResult).Version)
	assert.Contains(t, buf.String(), "ping ok.")
}

func TestCmd_KeyPersists(t *testing.T) {
	c := testCmd(t)
	require.NoError(t, c.Setup())
	key := c.Key()
	c.Close()
	c.Close()
	assert.Nil(t, c.Agent())

	c.Seed = ""
	require.NoError(t, c.Setup())
	defer c.Close()
	assert.Equal(t, key, c.Key(), "the enclave key is reused")
}

func TestPingCmd_Validate(t *testing.T) {
	assert.Error(t, PingCmd{}.Validate())
	assert.NoError(t, PingCmd{BaseAddr: "http://localhost:8080"}.Validate())
}
