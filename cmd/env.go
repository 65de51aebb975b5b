package cmd

import (
	"strings"

	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FCLI"

// BindEnvs binds the flags of envMap to their environment variables. The
// cmdName is the middle part of the variable name, e.g. FCLI_MEDIATOR_SEED,
// and it's empty for the root flags.
func BindEnvs(envMap map[string]string, cmdName string) (err error) {
	defer err2.Handle(&err, "bind envs of %q", cmdName)

	for flagKey, envName := range envMap {
		try.To(viper.BindEnv(flagKey, getEnvName(cmdName, envName)))
	}
	return nil
}

func getEnvName(cmdName, envName string) string {
	parts := []string{envPrefix}
	if cmdName != "" {
		parts = append(parts, strings.ToUpper(cmdName))
	}
	return strings.Join(append(parts, strings.ToUpper(envName)), "_")
}

// flagInfo is the usage text of the flag with its env variable.
func flagInfo(info, cmdPrefix, envName string) string {
	return info + ", " + getEnvName(cmdPrefix, envName)
}

// handleViperFlags walks from cmd to the root and fills every flag not given
// on the command line from viper, i.e. from env or the config file.
func handleViperFlags(cmd *cobra.Command) {
	for c := cmd; c != nil; c = c.Parent() {
		fillFromViper(c)
	}
}

func fillFromViper(cmd *cobra.Command) {
	defer err2.Catch(err2.Err(func(err error) {
		glog.Warningf("%s flags: %v", cmd.Name(), err)
	}))

	flags := cmd.LocalFlags()
	try.To(viper.BindPFlags(flags))
	if cmd.PreRunE != nil {
		try.To(cmd.PreRunE(cmd, nil))
	}
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !viper.IsSet(f.Name) {
			return
		}
		v := viper.GetString(f.Name)
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			if s := viper.GetStringSlice(f.Name); len(s) > 0 {
				try.To(sv.Replace(s))
			}
			return
		}
		if v != "" && v != f.Value.String() {
			try.To(flags.Set(f.Name, v))
		}
	})
}
