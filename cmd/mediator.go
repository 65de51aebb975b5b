package cmd

import (
	"log"
	"os"

	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/cmds/mediator"
	"github.com/findy-network/findy-didcomm/completionhelp"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
)

// MediatorCmd represents the mediator command
var MediatorCmd = &cobra.Command{
	Use:   "mediator",
	Short: "Parent command for starting and pinging mediator",
	Long: `
Parent command for starting and pinging mediator
	`,
	Run: func(cmd *cobra.Command, _ []string) {
		SubCmdNeeded(cmd)
	},
}

var mediatorStartEnvs = map[string]string{
	"service-name":      "SERVICE_NAME",
	"ws-service-name":   "WS_SERVICE_NAME",
	"host-scheme":       "HOST_SCHEME",
	"host-address":      "HOST_ADDRESS",
	"host-port":         "HOST_PORT",
	"server-port":       "SERVER_PORT",
	"enclave-path":      "ENCLAVE_PATH",
	"enclave-key":       "ENCLAVE_KEY",
	"seed":              "SEED",
	"queue-db":          "QUEUE_DB",
	"label":             "LABEL",
	"timeout":           "TIMEOUT",
	"inflight-timeout":  "INFLIGHT_TIMEOUT",
	"revert-interval":   "REVERT_INTERVAL",
	"max-batch":         "MAX_BATCH",
	"transport-schemes": "TRANSPORT_SCHEMES",
	"rate-limit":        "RATE_LIMIT",
	"burst":             "BURST",
	"grpc-port":         "GRPC_PORT",
}

// startMediatorCmd represents the mediator start subcommand
var startMediatorCmd = &cobra.Command{
	Use:   "start",
	Short: "Command for starting mediator",
	Long: `
Start command for the DIDComm mediator. The connections of the mediator are
given in the config file's connections: list.

Example
	findy-didcomm mediator start \
		--host-address mediator.example.com \
		--server-port 8080 \
		--enclave-path /data/enclave.bolt \
		--queue-db /data/queue \
		--config mediator.yaml
	`,
	PreRunE: func(*cobra.Command, []string) (err error) {
		return BindEnvs(mediatorStartEnvs, "MEDIATOR")
	},
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		defer err2.Handle(&err)

		if mCmd.ConfigFile == "" {
			mCmd.ConfigFile = rootFlags.cfgFile
		}
		try.To(mCmd.Validate())
		if !rootFlags.dryRun {
			cmd.SilenceUsage = true
			try.To1(mCmd.Exec(os.Stdout))
		}
		return nil
	},
}

var mediatorPingEnvs = map[string]string{
	"base-address": "PING_BASE_ADDRESS",
}

// pingMediatorCmd represents the mediator ping subcommand
var pingMediatorCmd = &cobra.Command{
	Use:   "ping",
	Short: "Command for pinging mediator",
	Long: `
Pings mediator.
If mediator works fine, ping ok with its version is printed.

Example
	findy-didcomm mediator ping \
		--base-address http://localhost:8080
	`,
	PreRunE: func(*cobra.Command, []string) (err error) {
		return BindEnvs(mediatorPingEnvs, "MEDIATOR")
	},
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		defer err2.Handle(&err)

		try.To(pmCmd.Validate())
		if !rootFlags.dryRun {
			cmd.SilenceUsage = true
			try.To1(pmCmd.Exec(os.Stdout))
		}
		return nil
	},
}

var (
	mCmd  = mediator.DefaultValues
	pmCmd = mediator.PingCmd{}
)

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		log.Println(err)
	}))

	mCmd.VersionInfo = "findy-didcomm v. " + utils.Version

	name := MediatorCmd.Name()
	flags := startMediatorCmd.Flags()
	flags.StringVar(&mCmd.ServiceName, "service-name", mCmd.ServiceName, flagInfo("URL path of the DIDComm HTTP endpoint", name, mediatorStartEnvs["service-name"]))
	flags.StringVar(&mCmd.WsServiceName, "ws-service-name", mCmd.WsServiceName, flagInfo("URL path of the DIDComm websocket endpoint", name, mediatorStartEnvs["ws-service-name"]))
	flags.StringVar(&mCmd.HostScheme, "host-scheme", mCmd.HostScheme, flagInfo("scheme of the public endpoint", name, mediatorStartEnvs["host-scheme"]))
	flags.StringVar(&mCmd.HostAddr, "host-address", mCmd.HostAddr, flagInfo("host address", name, mediatorStartEnvs["host-address"]))
	flags.UintVar(&mCmd.HostPort, "host-port", mCmd.HostPort, flagInfo("host port", name, mediatorStartEnvs["host-port"]))
	flags.UintVar(&mCmd.ServerPort, "server-port", mCmd.ServerPort, flagInfo("server port", name, mediatorStartEnvs["server-port"]))
	flags.StringVar(&mCmd.EnclavePath, "enclave-path", "", flagInfo("enclave file path", name, mediatorStartEnvs["enclave-path"]))
	flags.StringVar(&mCmd.EnclaveKey, "enclave-key", "", flagInfo("enclave keyset file path", name, mediatorStartEnvs["enclave-key"]))
	flags.StringVar(&mCmd.Seed, "seed", "", flagInfo("seed for the mediator key of a new enclave", name, mediatorStartEnvs["seed"]))
	flags.StringVar(&mCmd.QueueDB, "queue-db", mCmd.QueueDB, flagInfo("forward queue database name or path", name, mediatorStartEnvs["queue-db"]))
	flags.StringVar(&mCmd.Label, "label", mCmd.Label, flagInfo("mediator label", name, mediatorStartEnvs["label"]))
	flags.DurationVar(&mCmd.Timeout, "timeout", mCmd.Timeout, flagInfo("timeout of outbound HTTP and websocket sends", name, mediatorStartEnvs["timeout"]))
	flags.DurationVar(&mCmd.InflightTimeout, "inflight-timeout", mCmd.InflightTimeout, flagInfo("time before unacknowledged messages are redelivered", name, mediatorStartEnvs["inflight-timeout"]))
	flags.DurationVar(&mCmd.RevertInterval, "revert-interval", mCmd.RevertInterval, flagInfo("interval of the in-flight revert job", name, mediatorStartEnvs["revert-interval"]))
	flags.IntVar(&mCmd.MaxBatch, "max-batch", mCmd.MaxBatch, flagInfo("max messages in one delivery", name, mediatorStartEnvs["max-batch"]))
	flags.StringSliceVar(&mCmd.TransportSchemes, "transport-schemes", nil, flagInfo("outbound transport priority, e.g. ws,http", name, mediatorStartEnvs["transport-schemes"]))
	flags.Float64Var(&mCmd.RateLimit, "rate-limit", 0, flagInfo("inbound requests per second, 0 is unlimited", name, mediatorStartEnvs["rate-limit"]))
	flags.IntVar(&mCmd.Burst, "burst", 10, flagInfo("inbound request burst", name, mediatorStartEnvs["burst"]))
	flags.IntVar(&mCmd.GRPCPort, "grpc-port", 0, flagInfo("grpc health server port, 0 is off", name, mediatorStartEnvs["grpc-port"]))

	dataCompletion := func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return completionhelp.DataLocations(), cobra.ShellCompDirectiveDefault
	}
	try.To(startMediatorCmd.RegisterFlagCompletionFunc("enclave-path", dataCompletion))
	try.To(startMediatorCmd.RegisterFlagCompletionFunc("queue-db", dataCompletion))

	pingMediatorCmd.Flags().StringVar(&pmCmd.BaseAddr, "base-address", "http://localhost:8080", flagInfo("base address of mediator", name, mediatorPingEnvs["base-address"]))

	MediatorCmd.AddCommand(startMediatorCmd)
	MediatorCmd.AddCommand(pingMediatorCmd)
	rootCmd.AddCommand(MediatorCmd)
}
