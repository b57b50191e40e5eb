package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(loader RuntimeLoader) *cobra.Command {
	var serverAlias string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session for a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}

			server, err := rt.resolveServer(serverAlias)
			if err != nil {
				return err
			}

			ctrl, _, err := rt.openSession(server)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			if err := ctrl.Logout(); err != nil {
				return err
			}

			fmt.Fprintf(rt.Out, "✓ Logged out of %s\n", server.Label())
			return nil
		},
	}

	cmd.Flags().StringVar(&serverAlias, "server", "", "Server address or alias (uses the selected server if not specified)")

	return cmd
}
