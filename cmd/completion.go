package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish]",
	Short: "Generates the shell completion script",
	Long: `
Load the completions to the current shell:

	bash:  source <(findy-didcomm completion bash)
	zsh:   source <(findy-didcomm completion zsh)
	fish:  findy-didcomm completion fish | source

Add the same line to your shell's startup file, e.g. ~/.bashrc, to have them
in every session. The enclave and queue paths complete to the data directory.
`,
	ValidArgs:             []string{"bash", "zsh", "fish"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(_ *cobra.Command, args []string) error {
		switch args[0] {
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		default:
			return rootCmd.GenBashCompletionV2(os.Stdout, true)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
