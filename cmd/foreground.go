package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/executor"
	"github.com/spgill/sbackup/internal/restic"
)

// runForeground hands the terminal to a synthesized engine command.
// A nonzero engine exit surfaces as an error carrying that code, so
// the process exit mirrors the engine's.
func runForeground(cmd *cobra.Command, app *appContext, args []string, env []string) error {
	app.log.Debug("Engine command", "cmd", restic.Binary+" "+strings.Join(args, " "))
	_, err := executor.New(app.log).Run(cmd.Context(), executor.Command{
		Name:       restic.Binary,
		Args:       args,
		Env:        env,
		Foreground: true,
	})
	return err
}
