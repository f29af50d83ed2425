package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use: "radsim",
	Short: "RAD-Sim CLI tool runs NoC fabric experiments on a simulated " +
		"RAD cluster.",
	Long: `RAD-Sim CLI tool runs NoC fabric experiments on a simulated ` +
		`RAD cluster. It builds the cluster from a configuration file, ` +
		`drives random traffic through the fabric, and exports telemetry ` +
		`for offline analysis.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
