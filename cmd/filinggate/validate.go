package main

import (
	"context"
	"fmt"
	"os"
	"time"

	apihttp "github.com/artpar/filinggate/adapters/http"
	"github.com/artpar/filinggate/adapters/sqlite"
	"github.com/artpar/filinggate/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the filinggate configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Plans and rate limit policies are consistent
  - Filing service is reachable (optional)
  - Database is writable (optional)

Examples:
  filinggate validate
  filinggate validate --config /etc/filinggate/config.yaml --check-upstream`,
	RunE: runValidate,
}

var (
	validateCheckUpstream bool
	validateCheckDatabase bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckUpstream, "check-upstream", false, "check if the filing service is reachable")
	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config valid\n", checkMark)

	fmt.Printf("  %s Upstream: %s\n", checkMark, cfg.Upstream.URL)
	fmt.Printf("  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Printf("  %s Counter store: %s (atomic admission: %t, fail open: %t)\n",
		checkMark, cfg.RateLimit.Store, cfg.RateLimit.IsAtomic(), cfg.RateLimit.FailOpen)
	fmt.Printf("  %s Default policy: %d/min, %d/day\n",
		checkMark, cfg.RateLimit.Default.RequestsPerMinute, cfg.RateLimit.Default.RequestsPerDay)
	fmt.Printf("  %s Plans configured: %d\n", checkMark, len(cfg.Plans))

	if validateCheckUpstream {
		if err := checkUpstreamReachable(cfg.Upstream); err != nil {
			fmt.Printf("  %s Filing service reachable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Filing service reachable\n", checkMark)
		}
	}

	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Database.DSN); err != nil {
			fmt.Printf("  %s Database writable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Database writable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkUpstreamReachable(cfg config.UpstreamConfig) error {
	client, err := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{BaseURL: cfg.URL, Timeout: 5 * time.Second})
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.HealthCheck(ctx)
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
