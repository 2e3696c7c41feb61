package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/restic"
)

var executeCmd = &cobra.Command{
	Use:   "execute LOCATION [ARGS...]",
	Short: "Run the engine directly against a location",
	Long: `Run the restic command line application directly. The location's repo,
cache and password arguments are prepended automatically; everything after
LOCATION is passed through untouched. The engine's exit code becomes this
process's exit code.`,
	Args:          cobra.MinimumNArgs(1),
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
		engineArgs = append(engineArgs, args[1:]...)

		env, err := builder.ExecutionEnv(name)
		if err != nil {
			return err
		}
		return runForeground(cmd, app, engineArgs, restic.FlattenEnv(env))
	},
}

func init() {
	// Flags after LOCATION belong to the engine, not to this tool.
	executeCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(executeCmd)
}
