// Package cmd provides the CLI commands for rpcguard.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/rpcguard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rpcguard",
	Short: "rpcguard - admission control for RPC services",
	Long: `rpcguard serves RPC methods over HTTP behind an interceptor stack:
request logging, a per-caller token-bucket rate limit and a per-caller
concurrency limit.

Quick start:
  1. Optionally create a config file: rpcguard.yaml
  2. Run: rpcguard serve
  3. Call: curl -X POST localhost:8080/rpc/ping

Configuration:
  Config is loaded from rpcguard.yaml in the current directory,
  $HOME/.rpcguard/, or /etc/rpcguard/.

  Environment variables can override config values with the RPCGUARD_ prefix.
  Example: RPCGUARD_RATE_LIMIT_CAPACITY=50

Commands:
  serve       Start the HTTP server
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./rpcguard.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
