// Package app provides the entry point for the cubegate command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cubegate/cubegate/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "cubegate",
	DisableAutoGenTag: true,
	Short:             "cubegate resolves per-tenant security contexts into driver configuration",
	Long: `cubegate sits between a Cube-style analytics engine and its tenants' data
sources. It validates inbound context tokens, resolves each request to a
concrete data-source connection descriptor via an upstream credential
service or a static destination, derives the isolation keys the engine uses
to partition schema caches and connection pools, and keeps a pre-warmed
cache of all known tenant contexts.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the cubegate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Fatalf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
