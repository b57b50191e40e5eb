package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/consultadmin/consultadmin/internal/cli/config"
	"github.com/consultadmin/consultadmin/internal/cli/userconfig"
)

// NewSelectServerCmd creates the select-server command
func NewSelectServerCmd(loader RuntimeLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "select-server [address-or-alias]",
		Short: "Select the server to use for commands",
		Long: `Select the server to use for commands.

If no param is provided, an interactive prompt will be shown.

Examples:
  $ consultadmin select-server                    # Interactive selection
  $ consultadmin select-server admin.example.com  # Select by address
  $ consultadmin select-server production         # Select by alias`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}
			var addressOrAlias string
			if len(args) > 0 {
				addressOrAlias = args[0]
			}
			return runSelectServer(rt, addressOrAlias)
		},
	}
}

func runSelectServer(rt *Runtime, addressOrAlias string) error {
	cfg, err := config.LoadFromCurrentDir()
	if err != nil {
		return fmt.Errorf("failed to load config: %w\nRun 'consultadmin init' to create a configuration file", err)
	}

	var server *config.Server
	if addressOrAlias != "" {
		server, err = cfg.GetServer(addressOrAlias)
	} else {
		if rt.Prompt == nil {
			return fmt.Errorf("no server given and no interactive prompt available")
		}
		server, err = rt.Prompt(cfg)
	}
	if err != nil {
		return err
	}

	if err := userconfig.SetSelectedServer(server.Address); err != nil {
		return fmt.Errorf("failed to save selected server: %w", err)
	}

	fmt.Fprintf(rt.Out, "Selected server: %s\n", server.Label())
	return nil
}
