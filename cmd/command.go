package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/restic"
)

var commandCmd = &cobra.Command{
	Use:   "command LOCATION",
	Short: "Print the base engine command for a location",
	Long: `Write the basic restic command line for a backup location to stdout,
including repo, cache and password arguments plus any environment variables
the location declares. Useful for driving a repository from external scripts.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		name := args[0]

		loc, err := app.cfg.GetLocation(name)
		if err != nil {
			return err
		}
		builder := restic.NewBuilder(app.cfg, app.log)
		engineArgs, err := builder.LocationArgs(name, false)
		if err != nil {
			return err
		}

		var parts []string
		locationEnv := loc.Env
		if len(loc.CleanEnv) > 0 {
			locationEnv = loc.CleanEnv
		}
		if len(locationEnv) > 0 {
			parts = append(parts, "env")
			keys := make([]string, 0, len(locationEnv))
			for k := range locationEnv {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				parts = append(parts, k+"="+locationEnv[k])
			}
		}
		parts = append(parts, restic.Binary)
		parts = append(parts, engineArgs...)

		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, " "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commandCmd)
}
