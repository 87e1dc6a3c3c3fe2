// Package cmd defines the bankbatch CLI. Batch runs are kicked off by an
// external scheduler (cron, a container job); the binary itself carries no
// scheduling logic.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "bankbatch",
	Short:        "Batch processing engine for monthly bank-transaction files",
	Long:         "bankbatch validates, loads and aggregates monthly bank-transaction batches.\nConfiguration comes from the environment (a local .env file is honored).",
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
