package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or change the saved user and age",
		Long: `The session is kept in the local SQLite database. Its user scopes meals when
MEAL_USER_ID is not set, and its age picks the survey group for comparisons.`,
	}
	cmd.AddCommand(newSessionShowCmd(opts), newSessionSetCmd(opts), newSessionClearCmd(opts))
	return cmd
}

func newSessionShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, ok, err := a.repo.LoadSession(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "No session saved")
				return nil
			}
			if opts.jsonOut {
				return printJSON(out, map[string]any{
					"user_id":    sess.UserID,
					"age":        sess.Age,
					"updated_at": sess.UpdatedAt,
				})
			}
			fmt.Fprintf(out, "user %d, age %d (updated %s)\n", sess.UserID, sess.Age, ago(sess.UpdatedAt))
			return nil
		},
	}
}

func newSessionSetCmd(opts *rootOptions) *cobra.Command {
	var (
		userID int64
		age    int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Save the user and age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.repo.SaveSession(cmd.Context(), userID, age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved user %d, age %d\n", sess.UserID, sess.Age)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "User id")
	cmd.Flags().IntVar(&age, "age", 0, "Age in years")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("age")
	return cmd
}

func newSessionClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.repo.ClearSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session cleared")
			return nil
		},
	}
}
