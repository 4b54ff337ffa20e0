package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/artpar/filinggate/ports"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
	Long: `Manage filinggate users.

Examples:
  filinggate users list
  filinggate users create --email=dev@example.com --plan=pro
  filinggate users suspend 42
  filinggate users activate 42`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE:  runUsersList,
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	RunE:  runUsersCreate,
}

var usersSuspendCmd = &cobra.Command{
	Use:   "suspend <user-id>",
	Short: "Suspend a user; their keys stop authenticating",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserStatus(args[0], ports.UserSuspended)
	},
}

var usersActivateCmd = &cobra.Command{
	Use:   "activate <user-id>",
	Short: "Reactivate a suspended user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserStatus(args[0], ports.UserActive)
	},
}

var (
	userEmail    string
	userName     string
	userPlan     string
	userCustomer string
	userLimit    int
	userOffset   int
)

func init() {
	rootCmd.AddCommand(usersCmd)

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersSuspendCmd)
	usersCmd.AddCommand(usersActivateCmd)

	usersListCmd.Flags().IntVar(&userLimit, "limit", 50, "maximum users to show")
	usersListCmd.Flags().IntVar(&userOffset, "offset", 0, "users to skip")

	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "user email (required)")
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	usersCreateCmd.Flags().StringVar(&userPlan, "plan", "", "plan ID (default: the default plan)")
	usersCreateCmd.Flags().StringVar(&userCustomer, "stripe-customer", "", "Stripe customer ID")
	usersCreateCmd.MarkFlagRequired("email")
}

func runUsersList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	users, err := app.Users.List(context.Background(), userLimit, userOffset)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		fmt.Println()
		fmt.Println("Create a user with: filinggate users create --email=<email>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tPLAN\tSTATUS\tCREATED")
	fmt.Fprintln(w, "--\t-----\t----\t----\t------\t-------")
	for _, u := range users {
		plan := u.PlanID
		if plan == "" {
			plan = "(default)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Email, u.Name, plan, u.Status, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()

	if _, err := app.Users.GetByEmail(ctx, userEmail); err == nil {
		return fmt.Errorf("user already exists: %s", userEmail)
	} else if !errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("lookup user: %w", err)
	}

	if userPlan != "" {
		if _, err := app.Plans.Get(ctx, userPlan); err != nil {
			return fmt.Errorf("unknown plan: %s", userPlan)
		}
	}

	id, err := app.Users.Create(ctx, ports.User{
		Email:            userEmail,
		Name:             userName,
		PlanID:           userPlan,
		StripeCustomerID: userCustomer,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("%s Created user %d (%s)\n", checkMark, id, userEmail)
	fmt.Println()
	fmt.Printf("Create a key with: filinggate keys create --user=%d\n", id)
	return nil
}

func setUserStatus(rawID, status string) error {
	id, err := parseUserID(rawID)
	if err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	u, err := app.Users.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("user not found: %d", id)
	}
	if u.Status == status {
		fmt.Printf("User %d is already %s.\n", id, status)
		return nil
	}

	u.Status = status
	if err := app.Users.Update(ctx, u); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	fmt.Printf("%s User %d is now %s\n", checkMark, id, status)
	return nil
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user ID: %s", s)
	}
	return id, nil
}
