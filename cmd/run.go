package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/runner"
)

var (
	runGroups    []string
	runNoCopy    bool
	runLocations []string
)

var runCmd = &cobra.Command{
	Use:   "run PROFILE",
	Short: "Execute a backup profile now",
	Long: `Execute a backup profile against its policy's primary location, then copy
the resulting snapshot to every secondary location. When the profile's policy
enables auto apply, the retention policy is enforced after a successful run.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}

		_, err = runner.New(app.cfg, app.log).Run(cmd.Context(), runner.Options{
			Profile:          args[0],
			Groups:           runGroups,
			NoCopy:           runNoCopy,
			LocationOverride: runLocations,
			DryRun:           flagDryRun,
		})
		return err
	},
}

func init() {
	runCmd.Flags().StringArrayVarP(&runGroups, "group", "g", nil,
		"run only the named profile group (repeatable; default is all groups)")
	runCmd.Flags().BoolVarP(&runNoCopy, "no-copy", "N", false,
		"skip copying the snapshot to secondary locations")
	runCmd.Flags().StringArrayVarP(&runLocations, "location", "l", nil,
		"back up to this location instead of the policy's (repeatable; implies --no-copy)")
	rootCmd.AddCommand(runCmd)
}
