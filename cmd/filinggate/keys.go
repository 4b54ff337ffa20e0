package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Manage filinggate API keys.

Each user can have multiple API keys. A key may carry its own rate limit
that takes precedence over the user's plan.

Examples:
  filinggate keys list --user=42
  filinggate keys create --user=42 --name=ci
  filinggate keys create --user=42 --rpm=600 --rpd=100000
  filinggate keys revoke 7f0c...`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's API keys",
	RunE:  runKeysList,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

var (
	keyUserID string
	keyName   string
	keyRPM    int64
	keyRPD    int64
	keyYes    bool
)

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)

	keysListCmd.Flags().StringVar(&keyUserID, "user", "", "user ID (required)")
	keysListCmd.MarkFlagRequired("user")

	keysCreateCmd.Flags().StringVar(&keyUserID, "user", "", "user ID (required)")
	keysCreateCmd.Flags().StringVar(&keyName, "name", "", "key name (optional)")
	keysCreateCmd.Flags().Int64Var(&keyRPM, "rpm", 0, "requests per minute for this key (0: use plan)")
	keysCreateCmd.Flags().Int64Var(&keyRPD, "rpd", 0, "requests per day for this key (0: use plan)")
	keysCreateCmd.MarkFlagRequired("user")

	keysRevokeCmd.Flags().BoolVarP(&keyYes, "yes", "y", false, "skip confirmation")
}

func runKeysList(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(keyUserID)
	if err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	keys, err := app.Keys.ListKeys(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Printf("No keys found for user %d.\n", userID)
		fmt.Println()
		fmt.Printf("Create a key with: filinggate keys create --user=%d\n", userID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPREFIX\tNAME\tLIMITS\tSTATUS\tCREATED")
	fmt.Fprintln(w, "--\t------\t----\t------\t------\t-------")

	for _, k := range keys {
		status := "active"
		if k.RevokedAt != nil {
			status = "revoked"
		}
		limits := "plan"
		if k.RequestsPerMinute > 0 || k.RequestsPerDay > 0 {
			limits = fmt.Sprintf("%d/min %d/day", k.RequestsPerMinute, k.RequestsPerDay)
		}
		fmt.Fprintf(w, "%s\t%s...\t%s\t%s\t%s\t%s\n",
			k.ID, k.Prefix, k.Name, limits, status, k.CreatedAt.Format("2006-01-02"))
	}

	return w.Flush()
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(keyUserID)
	if err != nil {
		return err
	}
	if keyRPM < 0 || keyRPD < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	raw, k, err := app.Keys.CreateKey(context.Background(), userID, keyName, ratelimit.Policy{
		RequestsPerMinute: keyRPM,
		RequestsPerDay:    keyRPD,
	})
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	fmt.Printf("%s Created API key for user %d\n", checkMark, userID)
	fmt.Println()
	fmt.Println("API Key (save this, shown once):")
	fmt.Printf("  %s\n", raw)
	fmt.Println()
	fmt.Printf("Key ID: %s\n", k.ID)
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	keyID := args[0]

	if !keyYes && !confirm(fmt.Sprintf("Revoke key %s?", keyID)) {
		fmt.Println("Aborted.")
		return nil
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Keys.RevokeKey(context.Background(), keyID); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}

	fmt.Printf("%s Revoked key: %s\n", checkMark, keyID)
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
