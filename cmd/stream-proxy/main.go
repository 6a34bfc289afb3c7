// Package main is the entry point for StreamProxy.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stream-proxy-go/pkg/appctx"
	"stream-proxy-go/pkg/config"
)

// Global flags
var (
	flagConfig   string
	flagLogLevel string
)

// cfg holds the loaded configuration (defaults < config file < environment < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:               "stream-proxy",
	Short:             "Resolve embedded titles to HLS manifests and proxy them",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), appctx.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "TOML config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug | info | warn | error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command, args []string) error {
	if flagConfig != "" {
		os.Setenv("CONFIG_FILE", flagConfig)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
