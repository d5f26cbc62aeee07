// Package cmd provides the CLI commands for hrgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/hrgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hrgate",
	Short: "hrgate - HR directory tools for MCP clients",
	Long: `hrgate exposes an OData HR directory (SuccessFactors style) as a set of
Model Context Protocol tools. Callers may identify people by user ID,
employee ID or email address; hrgate resolves the identifier to the
directory key and builds update payloads that keep required fields and
manager/HR links intact.

Quick start:
  1. Create a config file: hrgate.yaml (or export SF_API_URL,
     SF_USERNAME and SF_PASSWORD)
  2. Run: hrgate start

Configuration:
  Config is loaded from hrgate.yaml in the current directory,
  $HOME/.hrgate/, or /etc/hrgate/.

  Environment variables override config values with the HRGATE_ prefix.
  Example: HRGATE_SERVER_TRANSPORT=http

Commands:
  start       Serve the tools over stdio or HTTP
  stop        Stop a running HTTP server
  resolve     Resolve an identifier once and print the directory key
  fields      Print the field vocabulary
  audit       Show recent audit records
  hash-key    Hash an API key for auth.api_keys
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./hrgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
