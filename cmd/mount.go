package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/config"
	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/restic"
)

var mountLocation string

var mountCmd = &cobra.Command{
	Use:   "mount PROFILE MOUNTPOINT",
	Short: "Mount a profile's snapshots to the filesystem",
	Long: `Mount all snapshots belonging to a backup profile at the given
filesystem mount point. Blocks until unmounted or interrupted.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		profileName := args[0]

		mountPoint, err := config.AbsPath(args[1], false)
		if err != nil {
			return err
		}
		if info, err := os.Stat(mountPoint); err != nil || !info.IsDir() {
			return apperrors.Newf(apperrors.TypeResource,
				"mount point %q does not exist", mountPoint)
		}

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
		locationName := mountLocation
		if locationName == "" {
			locationName = locations[0]
		}

		builder := restic.NewBuilder(app.cfg, app.log)
		engineArgs, err := builder.LocationArgs(locationName, false)
		if err != nil {
			return err
		}
		engineArgs = append(engineArgs, "mount")
		engineArgs = append(engineArgs, builder.TagArgs(profile)...)
		engineArgs = append(engineArgs, mountPoint)

		env, err := builder.ExecutionEnv(locationName)
		if err != nil {
			return err
		}

		app.log.Info("Mounting snapshots", "profile", profileName, "mount", mountPoint)
		return runForeground(cmd, app, engineArgs, restic.FlattenEnv(env))
	},
}

func init() {
	mountCmd.Flags().StringVarP(&mountLocation, "location", "l", "",
		"mount this location instead of the policy's primary")
	rootCmd.AddCommand(mountCmd)
}
