package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "wiretap",
	Short: "Wiretap - a developer-facing intercepting proxy suite",
	Long: `Wiretap runs normal HTTP, outgoing HTTPS (MITM), and DB wire proxies
side by side, recording every request/response pair and optionally serving
canned mocks in place of a live upstream.

It acts as a forward proxy across three transports, providing:
  - Request/response recording with bounded history per proxy
  - Mock serving and drift detection against live responses
  - Auto-mock synthesis from observed traffic
  - A local admin API for managing proxies and mocks

For more information, visit: https://github.com/wiretap`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Disable default completion command (we'll add our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
