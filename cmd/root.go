package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/config"
	"github.com/spgill/sbackup/internal/logger"
)

var (
	flagConfig  string
	flagVerbose bool
	flagDryRun  bool
	flagLogJSON bool
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:   "sbackup",
	Short: "sbackup orchestrates restic backups across locations, policies and profiles",
	Long: `sbackup is a thin orchestration layer around the restic backup engine.
Backup locations (repositories), retention policies and backup profiles are
declared once in a YAML configuration file, and every command synthesizes the
full restic invocation from those definitions. Profiles can be executed on
demand, copied to secondary locations, extracted into portable archives, or
run unattended on a cron schedule by the daemon.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "path to the configuration file (default ~/.sbackup.yaml)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output, including the synthesized engine commands")
	pf.BoolVarP(&flagDryRun, "dry-run", "n", false, "simulate destructive operations without performing them")
	pf.BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON lines")
	pf.BoolVar(&flagNoColor, "no-color", false, "disable colored log output")
}

// appContext carries everything a subcommand needs. It is built once
// per invocation rather than held in package globals so tests can
// construct their own.
type appContext struct {
	cfg *config.Config
	log *logger.Logger
}

func newAppContext() (*appContext, error) {
	log := logger.New(logger.Config{
		JSON:    flagLogJSON,
		NoColor: flagNoColor,
		Verbose: flagVerbose,
	})

	path := flagConfig
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, log)
	if err != nil {
		return nil, err
	}
	return &appContext{cfg: cfg, log: log}, nil
}

func Execute() error {
	return rootCmd.Execute()
}
