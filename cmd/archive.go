package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spgill/sbackup/internal/archive"
)

var (
	archiveLocation      string
	archiveEncrypt       bool
	archivePassword      string
	archiveNative        bool
	archiveUpload        string
	archiveAllowInsecure bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive DESTINATION PROFILE [SNAPSHOT...]",
	Short: "Extract snapshots into portable tar archives",
	Long: `Extract one or more snapshots from a backup location into compressed
".tar" archives, optionally AES-256 encrypted and uploaded to remote storage.
Snapshot arguments default to "latest". Archives are streamed through the
external pv, compressor and openssl tools when available, falling back to a
compatible built-in codec otherwise.`,
	Args:          cobra.MinimumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		return archive.NewManager(app.cfg, app.log).Run(cmd.Context(), archive.Options{
			Destination:      args[0],
			Profile:          args[1],
			Snapshots:        args[2:],
			LocationOverride: archiveLocation,
			Encrypt:          archiveEncrypt,
			PasswordFile:     archivePassword,
			Native:           archiveNative,
			Upload:           archiveUpload,
			AllowInsecure:    archiveAllowInsecure,
		})
	},
}

func init() {
	archiveCmd.Flags().StringVarP(&archiveLocation, "location", "l", "",
		"query this location instead of the policy's primary")
	archiveCmd.Flags().BoolVarP(&archiveEncrypt, "encrypt", "e", false,
		"encrypt the archive with AES-256 (appends '.aes' to the file name)")
	archiveCmd.Flags().StringVarP(&archivePassword, "password", "p", "",
		"path to a file containing the archive password")
	archiveCmd.Flags().BoolVar(&archiveNative, "builtin", false,
		"use the built-in codec even when pv, the compressor and openssl are available")
	archiveCmd.Flags().StringVar(&archiveUpload, "upload", "",
		"upload the finished archive to an s3://, sftp:// or ftp:// destination")
	archiveCmd.Flags().BoolVar(&archiveAllowInsecure, "allow-insecure", false,
		"permit plaintext transports such as FTP for uploads")
	rootCmd.AddCommand(archiveCmd)
}
