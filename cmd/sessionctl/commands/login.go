package commands

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// NewLoginCmd creates the login command
func NewLoginCmd(opts *Options) *cobra.Command {
	var email, password, callback string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			next, err := url.QueryUnescape(callback)
			if err != nil {
				return fmt.Errorf("invalid --callback: %w", err)
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			s.store.Init(ctx)

			target, err := s.store.Login(ctx, email, password, next)
			if err != nil {
				return err
			}

			user := s.store.Identity()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Email, user.Role)
			fmt.Fprintf(cmd.OutOrStdout(), "Next: %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&callback, "callback", "", "callbackUrl value from the login redirect, still URL-encoded")

	return cmd
}
