package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/restic"
)

var copyCmd = &cobra.Command{
	Use:   "copy SOURCE DESTINATION SNAPSHOT [SNAPSHOT...]",
	Short: "Copy snapshots between locations",
	Long: `Copy one or more snapshots from a source location to a destination
location. Both locations must be usable together: their declared environment
variables may not overlap, since a single merged environment is handed to the
engine.`,
	Args:          cobra.MinimumNArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		source, destination, snapshots := args[0], args[1], args[2:]

		builder := restic.NewBuilder(app.cfg, app.log)
		if err := builder.ValidateTwoLocationOperation(source, destination); err != nil {
			return err
		}

		sourceArgs, err := builder.LocationArgs(source, true)
		if err != nil {
			return err
		}
		destArgs, err := builder.LocationArgs(destination, false)
		if err != nil {
			return err
		}
		engineArgs := append(destArgs, "copy")
		engineArgs = append(engineArgs, sourceArgs...)
		engineArgs = append(engineArgs, snapshots...)

		sourceEnv, err := builder.ExecutionEnv(source)
		if err != nil {
			return err
		}
		destEnv, err := builder.ExecutionEnv(destination)
		if err != nil {
			return err
		}
		env := restic.FlattenEnv(restic.MergeEnv(sourceEnv, destEnv))
		return runForeground(cmd, app, engineArgs, env)
	},
}

func init() {
	rootCmd.AddCommand(copyCmd)
}
