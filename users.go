package main

import (
	"fmt"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pocusai/internal/auth"
	"pocusai/internal/models"
)

func newUsersCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Account administration commands",
	}

	cmd.AddCommand(newUsersListCmd(configPath))
	cmd.AddCommand(newUsersPendingCmd(configPath))
	cmd.AddCommand(newUsersStatusCmd(configPath, "approve", "Approve a pending account", models.StatusApproved))
	cmd.AddCommand(newUsersStatusCmd(configPath, "reject", "Reject an account", models.StatusRejected))
	cmd.AddCommand(newUsersDeleteCmd(configPath))
	return cmd
}

func newUsersListCmd(configPath *string) *cobra.Command {
	var (
		query  string
		status string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersList(cmd, *configPath, query, status)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by username, email or occupation")
	cmd.Flags().StringVarP(&status, "status", "s", auth.StatusAll, "filter by status (all, pending, approved, rejected)")
	return cmd
}

func newUsersPendingCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List accounts awaiting approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersList(cmd, *configPath, "", string(models.StatusPending))
		},
	}
}

func runUsersList(cmd *cobra.Command, configPath, query, status string) error {
	a, err := openApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.auth.ListUsers(cmd.Context())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	filtered := auth.FilterUsers(users, query, status)
	sum := auth.Summarize(users)

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tOCCUPATION\tSTATUS\tADMIN\tCREATED")
	for _, u := range filtered {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			u.ID, u.Username, u.Email, u.Occupation, u.Status, u.IsAdmin, u.CreatedAt.Format("2006-01-02"))
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d shown; total %d, pending %d, approved %d, rejected %d\n",
		len(filtered), sum.Total, sum.Pending, sum.Approved, sum.Rejected)
	return nil
}

func newUsersStatusCmd(configPath *string, use, short string, status models.UserStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username|id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := resolveUser(cmd, a, args[0])
			if err != nil {
				return err
			}
			if err := a.auth.SetStatus(cmd.Context(), user.ID, status); err != nil {
				return fmt.Errorf("set status: %w", err)
			}
			if status != models.StatusApproved {
				publishUser(cmd, a, user.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Username, status)
			return nil
		},
	}
}

func newUsersDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username|id>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := resolveUser(cmd, a, args[0])
			if err != nil {
				return err
			}
			if err := a.auth.DeleteUser(cmd.Context(), user.ID); err != nil {
				return fmt.Errorf("delete user: %w", err)
			}
			publishUser(cmd, a, user.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", user.Username)
			return nil
		},
	}
}

// resolveUser matches ref against account ids first, then usernames.
func resolveUser(cmd *cobra.Command, a *app, ref string) (*models.User, error) {
	users, err := a.auth.ListUsers(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if u.ID == ref {
			return u, nil
		}
	}
	for _, u := range users {
		if u.Username == ref {
			return u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func publishUser(cmd *cobra.Command, a *app, userID string) {
	if err := a.invalidator().PublishUser(cmd.Context(), userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("publish invalidation")
	}
}
