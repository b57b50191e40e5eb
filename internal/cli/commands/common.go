package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/consultadmin/consultadmin/internal/cli/auth"
	"github.com/consultadmin/consultadmin/internal/cli/client"
	"github.com/consultadmin/consultadmin/internal/cli/config"
	"github.com/consultadmin/consultadmin/internal/cli/serverselect"
	appconfig "github.com/consultadmin/consultadmin/internal/config"
	"github.com/consultadmin/consultadmin/internal/logger"
	"github.com/consultadmin/consultadmin/internal/session"
)

var errNonInteractive = errors.New("not a terminal")

// Runtime is what commands take from their environment
type Runtime struct {
	Out      io.Writer
	Settings *appconfig.Config
	Tokens   auth.TokenStore
	Log      zerolog.Logger
	Registry *prometheus.Registry
	// ReadPassword prompts for a secret on the terminal
	ReadPassword func(prompt string) (string, error)
	// Prompt picks a server when several are configured
	Prompt serverselect.Prompter

	metrics *session.Metrics
}

// RuntimeLoader builds the Runtime when a command runs
type RuntimeLoader func() (*Runtime, error)

// DefaultRuntime reads configuration from the environment and wires the
// real terminal, keyring and network
func DefaultRuntime() (*Runtime, error) {
	settings, err := appconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Init(settings.Logging.Level, settings.Logging.Format)

	tokens, err := tokenStore(settings.Session.TokenStore)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Out:          os.Stdout,
		Settings:     settings,
		Tokens:       tokens,
		Log:          logger.GetLogger(),
		Registry:     prometheus.NewRegistry(),
		ReadPassword: terminalPassword,
		Prompt:       serverselect.PromptServerSelection,
	}, nil
}

func tokenStore(backend string) (auth.TokenStore, error) {
	switch backend {
	case appconfig.TokenStoreFile:
		path, err := auth.DefaultTokenFilePath()
		if err != nil {
			return nil, err
		}
		return auth.NewFileTokenStore(path), nil
	default:
		return auth.Default, nil
	}
}

func terminalPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNonInteractive
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

// resolveServer loads consultadmin.json and picks the server to talk to
func (rt *Runtime) resolveServer(alias string) (*config.Server, error) {
	cfg, err := config.LoadFromCurrentDir()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w\nRun 'consultadmin init' to create a configuration file", err)
	}

	server, err := serverselect.ResolveServer(cfg, alias, rt.Prompt)
	if err != nil {
		return nil, err
	}

	if server.Address == "" {
		return nil, fmt.Errorf("server address is empty. Please edit %s and add a valid address", config.ConfigFileName)
	}

	return server, nil
}

func (rt *Runtime) newClient(server *config.Server) *client.Client {
	opts := []client.Option{
		client.WithScheme(rt.Settings.HTTP.Scheme),
		client.WithTimeout(rt.Settings.HTTP.RequestTimeout),
	}
	if rt.Settings.HTTP.InsecureSkipVerify {
		opts = append(opts, client.WithInsecureTLS())
	}
	return client.New(server.Address, opts...)
}

func (rt *Runtime) sessionMetrics() *session.Metrics {
	if rt.metrics == nil {
		rt.metrics = session.NewMetrics(rt.Registry)
	}
	return rt.metrics
}

// openSession builds the API client and the session controller for server.
// Requests made through the returned client carry the session token. The
// caller must Close the controller.
func (rt *Runtime) openSession(server *config.Server) (*session.Controller, *client.Client, error) {
	api := rt.newClient(server)

	ctrl, err := session.New(api, auth.ForServer(rt.Tokens, server.Address),
		session.WithRefreshInterval(rt.Settings.Session.RefreshInterval),
		session.WithLogger(rt.Log.With().Str("server", server.Address).Logger()),
		session.WithRecorder(rt.sessionMetrics()),
	)
	if err != nil {
		return nil, nil, err
	}
	api.SetTokenSource(ctrl.Store().Token)

	return ctrl, api, nil
}

// requireAuthenticated restores the stored session and fails unless it
// belongs to an admin
func requireAuthenticated(ctx context.Context, ctrl *session.Controller) (session.Snapshot, error) {
	err := ctrl.Start(ctx)
	snap := ctrl.Snapshot()
	switch {
	case errors.Is(err, session.ErrCredentialRejected), errors.Is(err, session.ErrAdminRequired):
		return snap, fmt.Errorf("session is no longer valid (%w). Please run 'consultadmin login' again", err)
	case err != nil:
		return snap, fmt.Errorf("failed to restore session: %w", err)
	case !snap.IsAuthenticated:
		return snap, auth.ErrNoToken
	}
	return snap, nil
}

// withSession resolves the server, restores its session and runs fn with an
// authenticated client
func (rt *Runtime) withSession(ctx context.Context, alias string, fn func(api *client.Client, snap session.Snapshot) error) error {
	server, err := rt.resolveServer(alias)
	if err != nil {
		return err
	}

	ctrl, api, err := rt.openSession(server)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	snap, err := requireAuthenticated(ctx, ctrl)
	if err != nil {
		return err
	}
	if err := fn(api, snap); err != nil {
		if client.StatusCode(err) == http.StatusUnauthorized {
			return fmt.Errorf("%w\nYour session has ended. Please run 'consultadmin login' again", err)
		}
		return err
	}
	return nil
}

func load(loader RuntimeLoader) (*Runtime, error) {
	if loader == nil {
		loader = DefaultRuntime
	}
	return loader()
}
