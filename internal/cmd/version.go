package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/docquery/docquery/internal/server/handlers"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including Crucible and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		writeVersion(cmd.OutOrStdout(), handlers.CurrentVersion(), extended)
		return nil
	},
}

func writeVersion(w io.Writer, info handlers.VersionResponse, extended bool) {
	_, _ = fmt.Fprintf(w, "%s %s\n", info.App.Name, info.App.Version)
	if !extended {
		return
	}
	_, _ = fmt.Fprintf(w, "Commit: %s\n", info.App.Commit)
	_, _ = fmt.Fprintf(w, "Built: %s\n", info.App.BuildDate)
	_, _ = fmt.Fprintf(w, "Go: %s (%s)\n", info.App.GoVersion, info.Runtime.Platform)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Gofulmen: %s\n", info.Dependencies.Gofulmen)
	_, _ = fmt.Fprintf(w, "Crucible: %s\n", info.Dependencies.Crucible)
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
