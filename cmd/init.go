package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/restic"
)

var initParent string

var initCmd = &cobra.Command{
	Use:   "init LOCATION",
	Short: "Initialize a backup location",
	Long: `Initialize a new backup location, preparing it for operation. With --parent
the new location inherits the chunker parameters of an existing location, which
keeps de-duplication compatible and allows snapshots to be copied between the
two.`,
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
		engineArgs = append(engineArgs, "init")

		env, err := builder.ExecutionEnv(name)
		if err != nil {
			return err
		}

		if initParent != "" {
			if err := builder.ValidateTwoLocationOperation(name, initParent); err != nil {
				return err
			}
			parentArgs, err := builder.LocationArgs(initParent, true)
			if err != nil {
				return err
			}
			parentEnv, err := builder.ExecutionEnv(initParent)
			if err != nil {
				return err
			}
			env = restic.MergeEnv(env, parentEnv)
			engineArgs = append(engineArgs, parentArgs...)
			engineArgs = append(engineArgs, "--copy-chunker-params")
		}

		return runForeground(cmd, app, engineArgs, restic.FlattenEnv(env))
	},
}

func init() {
	initCmd.Flags().StringVarP(&initParent, "parent", "p", "",
		"existing location to inherit chunker parameters from")
	rootCmd.AddCommand(initCmd)
}
