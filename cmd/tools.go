package cmd

import (
	"fmt"
	"os"

	"github.com/findy-network/findy-didcomm/cmds/key"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Parent command for the offline tools",
	Run: func(cmd *cobra.Command, _ []string) {
		SubCmdNeeded(cmd)
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Parent command for Ed25519 keys",
	Run: func(cmd *cobra.Command, _ []string) {
		SubCmdNeeded(cmd)
	},
}

var keyEnvs = map[string]string{
	"seed": "SEED",
	"json": "JSON",
}

var createKeyCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates an Ed25519 key and prints its verkey and did:key",
	Long: `
Creates an Ed25519 key. The same seed gives always the same key, e.g. for
the mediator's --seed.

Example
	findy-didcomm tools key create \
		--seed 00000000000000000000thisisa_test
	`,
	PreRunE: func(*cobra.Command, []string) error {
		return BindEnvs(keyEnvs, "KEY")
	},
	RunE: func(*cobra.Command, []string) (err error) {
		defer err2.Handle(&err)

		try.To(keyCreateCmd.Validate())
		if rootFlags.dryRun {
			return nil
		}
		if !keyJSON {
			try.To1(keyCreateCmd.Exec(os.Stdout))
			return nil
		}
		r := try.To1(keyCreateCmd.Exec(nil))
		try.To1(fmt.Println(string(try.To1(r.JSON()))))
		return nil
	},
}

var (
	keyCreateCmd = key.CreateCmd{}
	keyJSON      bool
)

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		fmt.Fprintln(os.Stderr, "key flags:", err)
	}))

	flags := createKeyCmd.Flags()
	flags.StringVar(&keyCreateCmd.Seed, "seed", "", flagInfo("32 character seed of the key", keyCmd.Name(), keyEnvs["seed"]))
	flags.BoolVar(&keyJSON, "json", false, flagInfo("print the key as JSON", keyCmd.Name(), keyEnvs["json"]))

	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(createKeyCmd)
}
