package cmd

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/stretchr/testify/assert"
)

var (
	testDir    string
	configFile string
)

func TestMain(m *testing.M) {
	setUp()
	code := m.Run()
	tearDown()
	os.Exit(code)
}

func tearDown() {
	_ = os.RemoveAll(testDir)
}

func setUp() {
	defer err2.Catch(err2.Err(func(err error) {
		fmt.Println("error on setup", err)
	}))

	try.To(flag.Set("logtostderr", "true"))
	testDir = try.To1(os.MkdirTemp("", "findy-didcomm-cmd"))
	configFile = filepath.Join(testDir, "mediator.yaml")
	try.To(os.WriteFile(configFile, []byte(`
server-port: 9090
label: configured mediator
connections:
  - id: alice
    label: Alice
    mediated-keys: []
`), 0600))
}

func TestExecute(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	tests := []struct {
		name string
		args []string
	}{
		{
			name: "tools create key",
			args: []string{"cmd",
				"tools", "key", "create", "--dry-run",
				"--seed", "00000000000000000000thisisa_test",
			},
		},
		{
			name: "ping mediator",
			args: []string{"cmd",
				"mediator", "ping", "--dry-run",
				"--base-address", "http://my_mediator_base_address.com",
			},
		},
		{
			name: "start mediator (config file)",
			args: []string{"cmd",
				"mediator", "start", "--dry-run",
				"--config", configFile,
				"--queue-db", filepath.Join(testDir, "queue"),
				"--inflight-timeout", "45s",
				"--transport-schemes", "ws,http",
			},
		},
		{
			name: "tools create key as JSON",
			args: []string{"cmd", "tools", "key", "create", "--json"},
		},
		{
			name: "version",
			args: []string{"cmd", "version"},
		},
		{
			name: "fish completion",
			args: []string{"cmd", "completion", "fish"},
		},
	}

	for _, test := range tests {
		os.Args = test.args
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true

		t.Run(test.name, func(t *testing.T) {
			if err := rootCmd.Execute(); err != nil {
				t.Errorf("Test error = %v", err)
			}
		})
	}

	assert.Equal(t, uint(9090), mCmd.ServerPort, "from the config file")
	assert.Equal(t, "configured mediator", mCmd.Label)
	assert.Equal(t, configFile, mCmd.ConfigFile)
	assert.Equal(t, "45s", mCmd.InflightTimeout.String())
	assert.Equal(t, []string{"ws", "http"}, mCmd.TransportSchemes)
}

func TestGetEnvName(t *testing.T) {
	tests := []struct {
		cmd, env, want string
	}{
		{"", "config", "FCLI_CONFIG"},
		{"", "DRY_RUN", "FCLI_DRY_RUN"},
		{"mediator", "SERVER_PORT", "FCLI_MEDIATOR_SERVER_PORT"},
		{"KEY", "seed", "FCLI_KEY_SEED"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getEnvName(tt.cmd, tt.env))
	}
	assert.Equal(t, "seed, FCLI_KEY_SEED", flagInfo("seed", "key", "SEED"))
}
