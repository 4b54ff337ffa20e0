package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Show subscription plans",
	Long: `Show the subscription plans and the quota each grants.

Plans are defined in the config file and copied into the database on
startup. Edit the config file to change them; a running server picks up
the change without a restart.

Examples:
  filinggate plans list`,
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	RunE:  runPlansList,
}

func init() {
	rootCmd.AddCommand(plansCmd)
	plansCmd.AddCommand(plansListCmd)
}

func runPlansList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	plans, err := app.Plans.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list plans: %w", err)
	}
	if len(plans) == 0 {
		def := app.Config.RateLimit.Default
		fmt.Printf("No plans configured. Everyone gets %d/min, %d/day.\n", def.RequestsPerMinute, def.RequestsPerDay)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPER MINUTE\tPER DAY\tSTRIPE PRICE\tDEFAULT")
	fmt.Fprintln(w, "--\t----\t----------\t-------\t------------\t-------")
	for _, p := range plans {
		def := ""
		if p.Default {
			def = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			p.ID, p.Name, p.RequestsPerMinute, p.RequestsPerDay, p.StripePriceID, def)
	}
	return w.Flush()
}
