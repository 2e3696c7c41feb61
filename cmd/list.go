package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:           "list",
	Short:         "List the configured locations, policies and profiles",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Locations:")
		for _, name := range sortedKeys(app.cfg.Locations) {
			fmt.Fprintf(out, "  - %s\n", name)
		}

		fmt.Fprintln(out, "\nPolicies:")
		for _, name := range sortedKeys(app.cfg.Policies) {
			fmt.Fprintf(out, "  - %s\n", name)
		}

		fmt.Fprintln(out, "\nProfiles:")
		if app.cfg.GlobalProfile != nil {
			fmt.Fprintln(out, "  - (global)")
		}
		for _, name := range sortedKeys(app.cfg.Profiles) {
			fmt.Fprintf(out, "  - %s\n", name)
		}
		return nil
	},
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(listCmd)
}
