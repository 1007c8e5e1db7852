package commands

import (
	"encoding/json"
	"fmt"

	"github.com/nurksbr/siber-sub001/client"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command
func NewStatusCmd(opts *Options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show who is logged in",
		Long:  "Reconcile the stored session with the server and show the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			s.store.Init(cmd.Context())
			user := s.store.Identity()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				return enc.Encode(client.AuthChange{User: user})
			}

			if user == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Email, user.Role)
			if user.Name != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  Name: %s\n", user.Name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  ID: %s\n", user.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the identity as JSON")

	return cmd
}
