package cmd

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/cmds"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Version: utils.Version,
	Use:     "findy-didcomm",
	Short:   "Findy DIDComm mediator and tools",
	Long: `
Findy DIDComm mediator and tools.

Every flag can be given as an env variable, e.g. FCLI_MEDIATOR_SERVER_PORT,
or in the YAML file of --config.
	`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		cmds.ParseLoggingArgs(rootFlags.logging)
		handleViperFlags(cmd)
		mCmd.PreRun()
	},
}

// Execute runs the root command and exits with 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// RootCmd returns the root command for the repos which extend the CLI.
func RootCmd() *cobra.Command {
	return rootCmd
}

// DryRun tells if the commands only validate their arguments.
func DryRun() bool {
	return rootFlags.dryRun
}

type RootFlags struct {
	cfgFile string
	dryRun  bool
	logging string
}

var rootFlags = RootFlags{}

var rootEnvs = map[string]string{
	"config":  "CONFIG",
	"logging": "LOGGING",
	"dry-run": "DRY_RUN",
}

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		fmt.Fprintln(os.Stderr, "root flags:", err)
	}))

	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootFlags.cfgFile, "config", "", flagInfo("YAML configuration file", "", rootEnvs["config"]))
	flags.StringVar(&rootFlags.logging, "logging", "-logtostderr=true -v=2", flagInfo("glog startup arguments", "", rootEnvs["logging"]))
	flags.BoolVarP(&rootFlags.dryRun, "dry-run", "n", false, flagInfo("validate the arguments only", "", rootEnvs["dry-run"]))

	for _, name := range []string{"logging", "dry-run"} {
		try.To(viper.BindPFlag(name, flags.Lookup(name)))
	}
	try.To(BindEnvs(rootEnvs, ""))

	// glog's own flags, e.g. -v, work too
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := readConfigFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	rootFlags.logging = viper.GetString("logging")
	rootFlags.dryRun = viper.GetBool("dry-run")
}

// readConfigFile reads the --config file, or the one of FCLI_CONFIG.
func readConfigFile() (err error) {
	defer err2.Handle(&err, "config file")

	if rootFlags.cfgFile == "" {
		rootFlags.cfgFile = os.Getenv(getEnvName("", rootEnvs["config"]))
	}
	if rootFlags.cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(rootFlags.cfgFile)
	viper.SetConfigType("yaml")
	try.To(viper.ReadInConfig())
	glog.V(1).Infoln("config file:", viper.ConfigFileUsed())
	return nil
}

// SubCmdNeeded prints the help of an abstract command and exits.
func SubCmdNeeded(cmd *cobra.Command) {
	fmt.Fprintln(os.Stderr, "subcommand needed")
	_ = cmd.Help()
	os.Exit(1)
}
