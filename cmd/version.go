package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version and the build information",
	Run: func(*cobra.Command, []string) {
		fmt.Println("findy-didcomm", utils.Version)
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		fmt.Println("go:", bi.GoVersion)
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision", "vcs.time", "vcs.modified":
				fmt.Printf("%s: %s\n", s.Key, s.Value)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
