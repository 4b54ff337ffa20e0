package main

import (
	"context"
	"fmt"
	"os"

	"github.com/artpar/filinggate/bootstrap"
	"github.com/artpar/filinggate/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the filinggate API server.

The server will:
  - Load configuration from filinggate.yaml (or --config)
  - Or load configuration from FILINGGATE_* environment variables
  - Open the database and the rate limit counter store
  - Serve /filings and /usage behind authentication and rate limits
  - Record usage for every gated request

Environment variables (for Docker deployments):
  FILINGGATE_UPSTREAM_URL      - Filing parser service URL (required)
  FILINGGATE_DATABASE_DSN      - Database path (default: filinggate.db)
  FILINGGATE_SERVER_PORT       - Server port (default: 8080)
  FILINGGATE_RATELIMIT_STORE   - Counter store: memory, sqlite or redis
  FILINGGATE_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  filinggate serve
  filinggate serve --config /etc/filinggate/config.yaml
  filinggate serve --hot-reload=false

  # Docker (env vars only):
  FILINGGATE_UPSTREAM_URL=http://parser:9000 filinggate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s\n", cfgFile)
		fmt.Println("Option 2: Set FILINGGATE_UPSTREAM_URL environment variable")
		return nil
	}

	opts := bootstrap.Options{Version: version, Commit: commit}

	// Hot reload only works with a config file
	if hasConfigFile && hotReload {
		holder, err := config.NewHolder(cfgFile, bootstrap.NewLogger(config.LoggingConfig{}))
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		app, err := bootstrap.New(holder.Get(), opts)
		if err != nil {
			return fmt.Errorf("error initializing: %w", err)
		}
		app.WatchConfig(holder)
		return app.Run(context.Background())
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if !hasConfigFile {
		fmt.Println("Running with environment variables (no config file)")
	}

	app, err := bootstrap.New(cfg, opts)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run(context.Background())
}
