package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/runner"
)

var (
	applyPrune     bool
	applyLocations []string
)

var applyCmd = &cobra.Command{
	Use:   "apply PROFILE",
	Short: "Apply a profile's retention policy",
	Long: `Apply the retention policy to selectively forget snapshots from every
location the profile's policy defines. Snapshot grouping is disabled so that
differing paths or tags cannot fragment the policy.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		return runner.New(app.cfg, app.log).Apply(cmd.Context(), runner.ApplyOptions{
			Profile:          args[0],
			Prune:            applyPrune,
			DryRun:           flagDryRun,
			LocationOverride: applyLocations,
		})
	},
}

func init() {
	applyCmd.Flags().BoolVarP(&applyPrune, "prune", "p", false,
		"prune unused data after forgetting (can take a while)")
	applyCmd.Flags().StringArrayVarP(&applyLocations, "location", "l", nil,
		"apply to this location instead of the policy's (repeatable)")
	rootCmd.AddCommand(applyCmd)
}
