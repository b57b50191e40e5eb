package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/consultadmin/consultadmin/internal/cli/commands"
)

var version = "dev" // Will be set during build

// NewRootCmd assembles the command tree. loader supplies the runtime each
// command runs with.
func NewRootCmd(loader commands.RuntimeLoader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "consultadmin",
		Short: "consultadmin - administer the consultation platform",
		Long: `consultadmin CLI - Manage users, providers, seekers, consultations,
payments, categories and content of the consultation platform.

Only platform admins can sign in. Sessions are stored in the OS keyring and
re-validated with the server while commands run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "consultadmin version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewInitCmd(loader))
	rootCmd.AddCommand(commands.NewSelectServerCmd(loader))
	rootCmd.AddCommand(commands.NewLoginCmd(loader))
	rootCmd.AddCommand(commands.NewLogoutCmd(loader))
	rootCmd.AddCommand(commands.NewWhoamiCmd(loader))
	rootCmd.AddCommand(commands.NewWatchCmd(loader))
	rootCmd.AddCommand(commands.NewListCmd(loader))
	rootCmd.AddCommand(commands.NewCreateCmd(loader))
	rootCmd.AddCommand(commands.NewUpdateCmd(loader))
	rootCmd.AddCommand(commands.NewDeleteCmd(loader))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd(commands.DefaultRuntime).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
