// Package cmd provides the CLI commands for gatewayctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "gatewayctl - API gateway core",
	Long: `gatewayctl is the request pipeline of an API gateway: route
resolution, access control, authentication, authorization, rate limiting,
and forwarding for a registry of backend services.

Quick start:
  1. Create a config file: gatewayctl.yaml
  2. Run: gatewayctl serve

Configuration:
  Config is loaded from gatewayctl.yaml in the current directory,
  $HOME/.gatewayctl/, or /etc/gatewayctl/.

  Environment variables can override config values with the GATEWAY_ prefix.
  Example: GATEWAY_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the gateway listener
  version     Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gatewayctl.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
