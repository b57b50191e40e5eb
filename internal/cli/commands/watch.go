package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/consultadmin/consultadmin/internal/session"
)

var errSessionEnded = errors.New("session ended")

// NewWatchCmd creates the watch command
func NewWatchCmd(loader RuntimeLoader) *cobra.Command {
	var serverAlias, metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive and report every change until interrupted",
		Long: `Restore the stored session and keep it alive, re-validating it with the
server on the configured refresh interval. Every session change is printed.
The command exits when interrupted or when the server ends the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, rt, serverAlias, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&serverAlias, "server", "", "Server address or alias (uses the selected server if not specified)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runWatch(ctx context.Context, rt *Runtime, serverAlias, metricsAddr string) error {
	server, err := rt.resolveServer(serverAlias)
	if err != nil {
		return err
	}

	ctrl, _, err := rt.openSession(server)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ended := make(chan struct{})
	var endOnce sync.Once
	unsubscribe := ctrl.Subscribe(func(snap session.Snapshot) {
		fmt.Fprintf(rt.Out, "%s  %s\n", time.Now().Format(time.TimeOnly), describe(snap))
		if snap.State == session.StateUnauthenticated {
			endOnce.Do(func() { close(ended) })
		}
	})
	defer unsubscribe()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.Log.Error().Err(err).Str("address", metricsAddr).Msg("Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	if _, err := requireAuthenticated(ctx, ctrl); err != nil {
		return err
	}

	fmt.Fprintf(rt.Out, "Watching session on %s (refresh every %s, Ctrl+C to stop)\n",
		server.Label(), rt.Settings.Session.RefreshInterval)

	select {
	case <-ctx.Done():
		return nil
	case <-ended:
		return fmt.Errorf("%w. Please run 'consultadmin login' again", errSessionEnded)
	}
}

func describe(snap session.Snapshot) string {
	switch {
	case snap.IsAuthenticated:
		return fmt.Sprintf("%s as %s (%s)", snap.State, snap.User.Name, snap.User.Email)
	case snap.Loading:
		return fmt.Sprintf("%s...", snap.State)
	default:
		return snap.State.String()
	}
}
