package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/consultadmin/consultadmin/internal/session"
)

// NewLoginCmd creates the login command
func NewLoginCmd(loader RuntimeLoader) *cobra.Command {
	var email, password, serverAlias string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a platform server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}
			return runLogin(cmd.Context(), rt, serverAlias, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set CONSULTADMIN_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set CONSULTADMIN_PASSWORD, will prompt if not provided)")
	cmd.Flags().StringVar(&serverAlias, "server", "", "Server address or alias (uses the selected server if not specified)")

	return cmd
}

func runLogin(ctx context.Context, rt *Runtime, serverAlias, email, password string) error {
	// Environment variables are useful for CI/CD
	if email == "" {
		email = os.Getenv("CONSULTADMIN_EMAIL")
	}
	if password == "" {
		password = os.Getenv("CONSULTADMIN_PASSWORD")
	}

	if email == "" {
		return fmt.Errorf("email is required (use --email flag or CONSULTADMIN_EMAIL env var)")
	}

	server, err := rt.resolveServer(serverAlias)
	if err != nil {
		return err
	}

	if password == "" {
		password, err = rt.ReadPassword("Password: ")
		if errors.Is(err, errNonInteractive) {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or CONSULTADMIN_PASSWORD env var)")
		}
		if err != nil {
			return err
		}
	}

	ctrl, _, err := rt.openSession(server)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	fmt.Fprintf(rt.Out, "Logging in to %s...\n", server.Label())

	user, err := ctrl.Login(ctx, email, password)
	if err != nil {
		var loginErr *session.LoginError
		if errors.As(err, &loginErr) {
			return fmt.Errorf("login failed: %s", loginErr.Message)
		}
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Fprintln(rt.Out, "✓ Login successful!")
	fmt.Fprintf(rt.Out, "  User: %s (%s)\n", user.Name, user.Email)

	return nil
}
