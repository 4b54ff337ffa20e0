package main

import (
	"fmt"
	"os"

	"github.com/artpar/filinggate/bootstrap"
	"github.com/artpar/filinggate/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "filinggate",
	Short: "Rate limiting and usage accounting for the SEC filing API",
	Long: `Filinggate authenticates requests to the SEC filing API, enforces
per-minute and per-day quotas, and records usage for every request.

Quick start:
  filinggate serve     # Start the API server

Management:
  filinggate users     # Manage users
  filinggate keys      # Manage API keys
  filinggate plans     # Show subscription plans
  filinggate usage     # View usage statistics
  filinggate validate  # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "filinggate.yaml", "config file path")
}

// openApp builds the application for a management command. Metrics are
// off and logging is quiet so command output stays readable.
func openApp() (*bootstrap.App, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Metrics.Enabled = false
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "console"

	app, err := bootstrap.New(cfg, bootstrap.Options{Version: version, Commit: commit})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return app, nil
}
