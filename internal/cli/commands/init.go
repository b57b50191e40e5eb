package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/consultadmin/consultadmin/internal/cli/config"
)

// NewInitCmd creates the init command
func NewInitCmd(loader RuntimeLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "init <server-address>",
		Short: "Add a platform server to consultadmin.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}
			return runInit(rt, args[0])
		},
	}
}

func runInit(rt *Runtime, address string) error {
	currentDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	configPath := filepath.Join(currentDir, config.ConfigFileName)

	cfg := &config.Config{Servers: []config.Server{}}
	isNewConfig := true
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		isNewConfig = false
	}

	server, added := cfg.AddServer(address)
	if !added {
		fmt.Fprintf(rt.Out, "Server %s already exists in %s\n", server.Label(), config.ConfigFileName)
		return nil
	}

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	if isNewConfig {
		fmt.Fprintf(rt.Out, "✓ Created ./%s with server %s\n", config.ConfigFileName, server.Label())
	} else {
		fmt.Fprintf(rt.Out, "✓ Added server %s to ./%s\n", server.Label(), config.ConfigFileName)
	}

	fmt.Fprintln(rt.Out, "\nNext steps:")
	fmt.Fprintln(rt.Out, "  Run 'consultadmin login' to authenticate")

	return nil
}
