package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/config"
	"github.com/spgill/sbackup/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled backup profiles unattended",
	Long: `Run the orchestrator in blocking daemon mode, executing backup profiles
according to their policies' cron schedules. Runs never overlap: a firing that
comes due while a backup is still in progress is skipped. An interrupt stops
the scheduler after any in-flight run finishes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}

		s := scheduler.New(app.cfg, app.log)
		if _, err := s.Schedule(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The configuration is only read at startup; edits take effect on
		// restart, but flag them so they do not go unnoticed.
		if watcher := watchConfig(app); watcher != nil {
			defer watcher.Close()
		}

		return s.Run(ctx)
	},
}

func watchConfig(app *appContext) *fsnotify.Watcher {
	path := flagConfig
	if path == "" {
		path = config.DefaultPath()
	}
	// Watch by absolute path; the flag may be relative while fsnotify
	// reports event names as the watcher resolved them.
	abs, err := config.AbsPath(path, false)
	if err != nil {
		app.log.Warn("Cannot watch configuration file for changes", "error", err)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		app.log.Warn("Cannot watch configuration file for changes", "error", err)
		return nil
	}
	// Watch the directory; editors typically replace the file rather
	// than write it in place.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		app.log.Warn("Cannot watch configuration file for changes", "error", err)
		watcher.Close()
		return nil
	}

	go func() {
		for event := range watcher.Events {
			if !sameConfigFile(event.Name, abs) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				app.log.Warn("Configuration file changed on disk; restart the daemon to apply it",
					"file", abs)
			}
		}
	}()
	return watcher
}

// sameConfigFile reports whether an event path refers to the watched
// config file, tolerating relative or unclean event names.
func sameConfigFile(eventName, absPath string) bool {
	if !filepath.IsAbs(eventName) {
		abs, err := filepath.Abs(eventName)
		if err != nil {
			return false
		}
		eventName = abs
	}
	return filepath.Clean(eventName) == absPath
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
