package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/restic"
)

var (
	snapshotsJSON     bool
	snapshotsLocation string
)

var snapshotsCmd = &cobra.Command{
	Use:           "snapshots PROFILE",
	Short:         "List the snapshots recorded for a profile",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		profileName := args[0]

		profile, err := app.cfg.GetProfile(profileName)
		if err != nil {
			return err
		}
		policy, err := app.cfg.GetPolicy(profile.Policy)
		if err != nil {
			return err
		}
		locations, err := policy.Locations()
		if err != nil {
			return err
		}
		locationName := snapshotsLocation
		if locationName == "" {
			locationName = locations[0]
		}

		builder := restic.NewBuilder(app.cfg, app.log)
		engineArgs, err := builder.LocationArgs(locationName, false)
		if err != nil {
			return err
		}
		engineArgs = append(engineArgs, "snapshots")
		engineArgs = append(engineArgs, builder.TagArgs(profile)...)
		if snapshotsJSON {
			engineArgs = append(engineArgs, "--json")
		}

		env, err := builder.ExecutionEnv(locationName)
		if err != nil {
			return err
		}
		return runForeground(cmd, app, engineArgs, restic.FlattenEnv(env))
	},
}

func init() {
	snapshotsCmd.Flags().BoolVar(&snapshotsJSON, "json", false, "emit the listing as JSON")
	snapshotsCmd.Flags().StringVarP(&snapshotsLocation, "location", "l", "",
		"query this location instead of the policy's primary")
	rootCmd.AddCommand(snapshotsCmd)
}
