package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/consultadmin/consultadmin/internal/cli/auth"
	appconfig "github.com/consultadmin/consultadmin/internal/config"
	"github.com/consultadmin/consultadmin/internal/devserver"
)

// memTokens is an in-memory token store for testing
type memTokens struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *memTokens) SaveToken(server, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[server] = token
	return nil
}

func (m *memTokens) LoadToken(server string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[server]
	if !ok {
		return "", auth.ErrNoToken
	}
	return token, nil
}

func (m *memTokens) DeleteToken(server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, server)
	return nil
}

func (m *memTokens) get(server string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[server]
}

// syncBuffer collects output written from several goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type testEnv struct {
	rt      *Runtime
	out     *syncBuffer
	tokens  *memTokens
	srv     *devserver.Server
	address string
}

// newTestEnv runs a dev server and a project directory pointing at it
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("CONSULTADMIN_EMAIL", "")
	t.Setenv("CONSULTADMIN_PASSWORD", "")
	t.Chdir(t.TempDir())

	srv, err := devserver.New(appconfig.DevServerConfig{
		DatabaseURL: ":memory:",
		JWTSecret:   "commands-test-secret",
		TokenTTL:    time.Hour,
	}, zerolog.Nop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	require.NoError(t, srv.Seed(devserver.DefaultSeed()))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	out := &syncBuffer{}
	tokens := &memTokens{tokens: map[string]string{}}
	rt := &Runtime{
		Out: out,
		Settings: &appconfig.Config{
			Session: appconfig.SessionConfig{RefreshInterval: time.Hour},
			HTTP:    appconfig.HTTPConfig{Scheme: "http", RequestTimeout: 5 * time.Second},
		},
		Tokens:   tokens,
		Log:      zerolog.Nop(),
		Registry: prometheus.NewRegistry(),
		ReadPassword: func(string) (string, error) {
			return "", errNonInteractive
		},
	}

	address := strings.TrimPrefix(ts.URL, "http://")
	require.NoError(t, runInit(rt, address))
	out.Reset()

	return &testEnv{rt: rt, out: out, tokens: tokens, srv: srv, address: address}
}

func (e *testEnv) loader() RuntimeLoader {
	return func() (*Runtime, error) { return e.rt, nil }
}

func (e *testEnv) run(ctx context.Context, newCmd func(RuntimeLoader) *cobra.Command, args ...string) error {
	cmd := newCmd(e.loader())
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(e.out)
	cmd.SetErr(e.out)
	cmd.SilenceUsage = true
	return cmd.ExecuteContext(ctx)
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	require.NoError(t, e.run(context.Background(), NewLoginCmd, "--email", "admin@consultadmin.local", "--password", "admin-password"))
	require.NotEmpty(t, e.tokens.get(e.address))
	e.out.Reset()
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
