package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/consultadmin/consultadmin/internal/cli/client"
	"github.com/consultadmin/consultadmin/internal/session"
)

// readPayload parses --data, which is inline JSON or @path to a JSON file
func readPayload(data string) (client.Record, error) {
	if data == "" {
		return nil, fmt.Errorf("--data is required")
	}

	raw := []byte(data)
	if path, ok := strings.CutPrefix(data, "@"); ok {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
	}

	var rec client.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return rec, nil
}

// NewCreateCmd creates the create command
func NewCreateCmd(loader RuntimeLoader) *cobra.Command {
	var serverAlias, data, output string

	cmd := &cobra.Command{
		Use:   "create <resource> --data <json>",
		Short: "Create a record",
		Example: `  $ consultadmin create categories --data '{"name":"Legal"}'
  $ consultadmin create providers --data @provider.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}
			return runCreate(cmd.Context(), rt, serverAlias, args[0], data, output)
		},
	}

	cmd.Flags().StringVar(&serverAlias, "server", "", "Server address or alias (uses the selected server if not specified)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Record as JSON, or @file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Print the stored record as json or yaml")

	return cmd
}

func runCreate(ctx context.Context, rt *Runtime, serverAlias, resourceName, data, output string) error {
	r, err := client.LookupResource(resourceName)
	if err != nil {
		return err
	}
	rec, err := readPayload(data)
	if err != nil {
		return err
	}
	if err := r.ValidatePayload(rec, false); err != nil {
		return err
	}

	return rt.withSession(ctx, serverAlias, func(api *client.Client, _ session.Snapshot) error {
		created, err := api.Create(ctx, r, rec)
		if err != nil {
			return err
		}
		return printRecord(rt, output, fmt.Sprintf("✓ Created %s %s", r.Name, created.ID()), created)
	})
}

// NewUpdateCmd creates the update command
func NewUpdateCmd(loader RuntimeLoader) *cobra.Command {
	var serverAlias, data, output string

	cmd := &cobra.Command{
		Use:     "update <resource> <id> --data <json>",
		Short:   "Update fields of a record",
		Example: `  $ consultadmin update providers 01J9Z3K8Q7 --data '{"status":"approved"}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}
			return runUpdate(cmd.Context(), rt, serverAlias, args[0], args[1], data, output)
		},
	}

	cmd.Flags().StringVar(&serverAlias, "server", "", "Server address or alias (uses the selected server if not specified)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Fields to change as JSON, or @file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Print the stored record as json or yaml")

	return cmd
}

func runUpdate(ctx context.Context, rt *Runtime, serverAlias, resourceName, id, data, output string) error {
	r, err := client.LookupResource(resourceName)
	if err != nil {
		return err
	}
	rec, err := readPayload(data)
	if err != nil {
		return err
	}
	if err := r.ValidatePayload(rec, true); err != nil {
		return err
	}

	return rt.withSession(ctx, serverAlias, func(api *client.Client, _ session.Snapshot) error {
		updated, err := api.Update(ctx, r, id, rec)
		if err != nil {
			return err
		}
		return printRecord(rt, output, fmt.Sprintf("✓ Updated %s %s", r.Name, id), updated)
	})
}

func printRecord(rt *Runtime, output, message string, rec client.Record) error {
	if output == "" {
		fmt.Fprintln(rt.Out, message)
		return nil
	}
	if output == outputTable {
		return fmt.Errorf("table output is only available for ls")
	}
	if err := validateOutput(output); err != nil {
		return err
	}
	return writeStructured(rt.Out, output, rec)
}
