package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/versions"
)

// newVersionCmd creates a new version command
func newVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the version of cubegate",
		Long:  `Display version information about cubegate, including version number, git commit, build date, and Go version.`,
		Run: func(cmd *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()

			if jsonOutput {
				out, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					logger.Errorf("Error marshaling version info: %v", err)
					return
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cubegate %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", info.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", info.BuildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", info.GoVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "Platform: %s\n", info.Platform)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version information as JSON")

	return cmd
}
