package cmd

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/archive"
	apperrors "github.com/spgill/sbackup/internal/errors"
)

var (
	decryptPassword string
	decryptBuiltin  bool
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt INPUT [OUTPUT]",
	Short: "Decrypt an encrypted snapshot archive",
	Long: `Decrypt an archive produced with 'archive --encrypt' back into a plain
tar stream. With no OUTPUT argument the stream is written to stdout, which must
not be a terminal.`,
	Args:          cobra.RangeArgs(1, 2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}

		var out io.Writer
		if len(args) == 2 {
			f, err := os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
			if err != nil {
				return apperrors.Wrap(err, apperrors.TypeResource,
					"cannot create output file "+args[1], "")
			}
			defer f.Close()
			out = f
		} else {
			if isatty.IsTerminal(os.Stdout.Fd()) {
				return apperrors.New(apperrors.TypeValidation,
					"stdout is a terminal; refusing to write binary archive data to it",
					"redirect or pipe the output, or pass an OUTPUT argument")
			}
			out = os.Stdout
		}

		return archive.NewManager(app.cfg, app.log).Decrypt(cmd.Context(), archive.DecryptOptions{
			Input:        args[0],
			PasswordFile: decryptPassword,
			Builtin:      decryptBuiltin,
			Output:       out,
		})
	},
}

func init() {
	decryptCmd.Flags().StringVarP(&decryptPassword, "password", "p", "",
		"path to a file containing the archive password")
	decryptCmd.Flags().BoolVar(&decryptBuiltin, "builtin", false,
		"decrypt in-process instead of shelling out to openssl")
	rootCmd.AddCommand(decryptCmd)
}
