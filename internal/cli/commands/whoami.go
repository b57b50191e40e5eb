package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/consultadmin/consultadmin/internal/cli/client"
	"github.com/consultadmin/consultadmin/internal/session"
)

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(loader RuntimeLoader) *cobra.Command {
	var serverAlias string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}
			return runWhoami(cmd.Context(), rt, serverAlias)
		},
	}

	cmd.Flags().StringVar(&serverAlias, "server", "", "Server address or alias (uses the selected server if not specified)")

	return cmd
}

func runWhoami(ctx context.Context, rt *Runtime, serverAlias string) error {
	return rt.withSession(ctx, serverAlias, func(_ *client.Client, snap session.Snapshot) error {
		fmt.Fprintf(rt.Out, "User:    %s (%s)\n", snap.User.Name, snap.User.Email)
		fmt.Fprintf(rt.Out, "Role:    %s\n", snap.User.Role)

		if expiry, ok := tokenExpiry(snap.Token); ok {
			fmt.Fprintf(rt.Out, "Expires: %s (in %s)\n", expiry.Local().Format(time.RFC1123), time.Until(expiry).Round(time.Second))
		} else {
			fmt.Fprintln(rt.Out, "Expires: never")
		}
		return nil
	})
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server has just vouched for the token
func tokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
