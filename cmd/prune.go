package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/restic"
)

var pruneCmd = &cobra.Command{
	Use:           "prune LOCATION",
	Short:         "Prune a location of unused data packs",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		name := args[0]

		builder := restic.NewBuilder(app.cfg, app.log)
		engineArgs, err := builder.LocationArgs(name, false)
		if err != nil {
			return err
		}
		engineArgs = append(engineArgs, "prune")
		if flagDryRun {
			engineArgs = append(engineArgs, "--dry-run")
		}

		env, err := builder.ExecutionEnv(name)
		if err != nil {
			return err
		}
		return runForeground(cmd, app, engineArgs, restic.FlattenEnv(env))
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
