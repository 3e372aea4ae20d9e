// Package cmd holds the botrader command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "botrader",
	Short: "Simulated binary-options trading service",
	Long: `botrader runs a paper binary-options trading session against a live
(or simulated) kline feed.

It provides:
  - serve: the trading engine with its HTTP/WebSocket gateway
  - history: inspect or clear the persisted trade history
  - version: print build information

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}
