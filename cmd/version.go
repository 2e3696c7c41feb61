package cmd

const Version = "2.1.0"

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("sbackup version {{ .Version }}\n")
}
