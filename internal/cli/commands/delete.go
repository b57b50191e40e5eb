package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/consultadmin/consultadmin/internal/cli/client"
	"github.com/consultadmin/consultadmin/internal/session"
)

// NewDeleteCmd creates the delete command
func NewDeleteCmd(loader RuntimeLoader) *cobra.Command {
	var serverAlias string

	cmd := &cobra.Command{
		Use:   "delete <resource> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}
			return runDelete(cmd.Context(), rt, serverAlias, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&serverAlias, "server", "", "Server address or alias (uses the selected server if not specified)")

	return cmd
}

func runDelete(ctx context.Context, rt *Runtime, serverAlias, resourceName, id string) error {
	r, err := client.LookupResource(resourceName)
	if err != nil {
		return err
	}

	return rt.withSession(ctx, serverAlias, func(api *client.Client, _ session.Snapshot) error {
		if err := api.Delete(ctx, r, id); err != nil {
			return err
		}
		fmt.Fprintf(rt.Out, "✓ Deleted %s %s\n", r.Name, id)
		return nil
	})
}
