package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/artpar/filinggate/domain/usage"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "View usage statistics",
	Long: `View API usage statistics for a key or a user.

Examples:
  filinggate usage stats --key=7f0c...
  filinggate usage stats --user=42 --days=7`,
}

var usageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize usage over the last N days",
	RunE:  runUsageStats,
}

var (
	usageKeyID  string
	usageUserID string
	usageDays   int
)

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageStatsCmd)

	usageStatsCmd.Flags().StringVar(&usageKeyID, "key", "", "API key ID")
	usageStatsCmd.Flags().StringVar(&usageUserID, "user", "", "user ID")
	usageStatsCmd.Flags().IntVar(&usageDays, "days", 30, "days to summarize")
}

func runUsageStats(cmd *cobra.Command, args []string) error {
	q := usage.Query{APIKey: usageKeyID, Days: usageDays}
	if usageUserID != "" {
		id, err := parseUserID(usageUserID)
		if err != nil {
			return err
		}
		q.UserID = id
	}
	if q.APIKey == "" && q.UserID == 0 {
		return fmt.Errorf("--key or --user is required")
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if limit := app.Config.Usage.MaxQueryDays; q.Days > limit {
		q.Days = limit
	}

	stats, err := app.Tracker.Stats(context.Background(), q)
	if err != nil {
		return fmt.Errorf("failed to load usage: %w", err)
	}

	fmt.Printf("Usage %s to %s (%d days)\n\n",
		stats.Period.Start.Format("2006-01-02 15:04"), stats.Period.End.Format("2006-01-02 15:04"), stats.Period.Days)
	fmt.Printf("  Requests:      %d\n", stats.TotalRequests)
	fmt.Printf("  Successful:    %d\n", stats.SuccessfulRequests)
	fmt.Printf("  Errors:        %d\n", stats.ErrorRequests)
	fmt.Printf("  Success rate:  %.1f%%\n", stats.SuccessRate*100)
	fmt.Printf("  Avg latency:   %.1fms\n", stats.AverageResponseTimeMs)

	if len(stats.EndpointStats) == 0 {
		return nil
	}

	endpoints := make([]string, 0, len(stats.EndpointStats))
	for e := range stats.EndpointStats {
		endpoints = append(endpoints, e)
	}
	sort.Strings(endpoints)

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tREQUESTS\tAVG MS")
	fmt.Fprintln(w, "--------\t--------\t------")
	for _, e := range endpoints {
		s := stats.EndpointStats[e]
		fmt.Fprintf(w, "%s\t%d\t%.1f\n", e, s.Count, s.AvgTime)
	}
	return w.Flush()
}
