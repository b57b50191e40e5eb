package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/consultadmin/consultadmin/internal/cli/client"
)

// DefaultRefreshInterval is how often an authenticated session is re-validated
const DefaultRefreshInterval = 5 * time.Minute

// API is the part of the HTTP client the controller depends on
type API interface {
	Login(ctx context.Context, email, password string) (*client.LoginResponse, error)
	CurrentUser(ctx context.Context, token string) (*client.User, error)
	OnResponse(hook client.ResponseHook) (func(), error)
}

// Timer is a scheduled callback that can be cancelled
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Controller
type Option func(*Controller)

// WithRefreshInterval sets the re-validation period (default 5m)
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the controller logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithAfterFunc replaces the refresh scheduler
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Controller) {
		c.afterFunc = fn
	}
}

// WithRecorder sets where session metrics go
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.metrics = r
	}
}

// Controller runs the session state machine. It is the only writer of the
// Store and of durable token storage.
//
// Every operation takes a generation number when it starts; when its
// network call returns, the result is applied only if no other operation
// started in between. A login answered after a logout, or a refresh
// answered after a forced logout, is dropped.
type Controller struct {
	api       API
	store     *Store
	log       zerolog.Logger
	interval  time.Duration
	afterFunc AfterFunc
	metrics   Recorder

	ctx        context.Context
	cancel     context.CancelFunc
	unregister func()

	mu       sync.Mutex
	gen      uint64
	loginGen uint64 // generation of the login in flight, 0 when none
	timer    Timer
	epoch    uint64 // bumped whenever the refresh timer is cancelled
	closed   bool

	listenersMu sync.Mutex
	listeners   map[uint64]func(Snapshot)
	listenerSeq uint64

	// pending holds snapshots in the order they were applied. Changes are
	// queued under mu and delivered by whichever goroutine is draining.
	notifyMu   sync.Mutex
	pending    []Snapshot
	delivering bool
}

// New creates a controller and installs its 401 hook on api. Call Close
// when done to cancel the refresh timer and remove the hook.
func New(api API, storage TokenStorage, opts ...Option) (*Controller, error) {
	c := &Controller{
		api:       api,
		store:     NewStore(storage),
		log:       zerolog.Nop(),
		interval:  DefaultRefreshInterval,
		afterFunc: realAfterFunc,
		metrics:   nopRecorder{},
		listeners: make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}

	unregister, err := api.OnResponse(c.handleResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to register response hook: %w", err)
	}
	c.unregister = unregister
	c.ctx, c.cancel = context.WithCancel(context.Background())

	return c, nil
}

// Store returns the session store for reading
func (c *Controller) Store() *Store {
	return c.store
}

// Snapshot returns the current session
func (c *Controller) Snapshot() Snapshot {
	return c.store.Get()
}

// Subscribe registers fn to be called with the new snapshot after every
// session change. Calls happen after the controller lock is released, one
// at a time and in the order the changes were made: a change made while
// another goroutine is delivering is handed to that goroutine, so a
// listener never sees an older snapshot after a newer one.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.listenerSeq++
	id := c.listenerSeq
	c.listeners[id] = fn

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

// queueLocked records snap for delivery. It must be called under mu so the
// queue order matches the order changes were applied.
func (c *Controller) queueLocked(snap Snapshot) {
	c.notifyMu.Lock()
	c.pending = append(c.pending, snap)
	c.notifyMu.Unlock()
}

// flush delivers queued snapshots unless another goroutine already is
func (c *Controller) flush() {
	c.notifyMu.Lock()
	if c.delivering {
		c.notifyMu.Unlock()
		return
	}
	c.delivering = true

	for len(c.pending) > 0 {
		snap := c.pending[0]
		c.pending = c.pending[1:]
		c.notifyMu.Unlock()
		c.deliver(snap)
		c.notifyMu.Lock()
	}
	// Cleared together with the empty check so no queued change is left
	// without a goroutine to deliver it
	c.delivering = false
	c.notifyMu.Unlock()
}

func (c *Controller) deliver(snap Snapshot) {
	c.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap.clone())
	}
}

// applyLocked moves the session to state. loading follows the state.
func (c *Controller) applyLocked(state State, token string, user *User) Snapshot {
	prev := c.store.Get().State
	snap := c.store.set(func(s *Snapshot) {
		s.State = state
		s.Token = token
		s.User = user
		s.Loading = state == StateLoading
	})

	if state != StateAuthenticated {
		c.stopTimerLocked()
	} else if prev != StateAuthenticated {
		c.armTimerLocked()
	}

	if prev != state {
		c.metrics.RecordTransition(state)
		c.log.Debug().
			Str("from", prev.String()).
			Str("to", state.String()).
			Msg("Session transition")
	}
	return snap
}

func (c *Controller) armTimerLocked() {
	c.stopTimerLocked()
	epoch := c.epoch
	c.timer = c.afterFunc(c.interval, func() { c.onTimer(epoch) })
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.epoch++
}

func (c *Controller) onTimer(epoch uint64) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch || c.store.Get().State != StateAuthenticated {
		c.mu.Unlock()
		return
	}
	c.timer = c.afterFunc(c.interval, func() { c.onTimer(epoch) })
	c.mu.Unlock()

	_ = c.Refresh(c.ctx)
}

// Start recovers a session from durable storage. Without a stored token
// the session becomes unauthenticated immediately and nothing is sent.
// Start may be called again after a failed recovery.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	switch c.store.Get().State {
	case StateLoading:
		c.mu.Unlock()
		return ErrBusy
	case StateAuthenticated:
		c.mu.Unlock()
		return nil
	}

	c.gen++
	gen := c.gen

	token, err := c.store.loadToken()
	if err != nil {
		c.queueLocked(c.applyLocked(StateUnauthenticated, "", nil))
		c.mu.Unlock()
		c.flush()
		return fmt.Errorf("failed to read stored token: %w", err)
	}

	if token == "" {
		c.queueLocked(c.applyLocked(StateUnauthenticated, "", nil))
		c.mu.Unlock()
		c.flush()
		c.log.Debug().Msg("No stored token")
		return nil
	}

	c.queueLocked(c.applyLocked(StateLoading, token, nil))
	c.mu.Unlock()
	c.flush()

	user, err := c.api.CurrentUser(ctx, token)
	return c.resolveIdentity("recover", gen, token, user, err)
}

// Refresh re-validates an authenticated session in the background. It
// never toggles loading, and a transient failure leaves the session as it
// was. It is a no-op unless the session is authenticated.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	snap := c.store.Get()
	if c.closed || snap.State != StateAuthenticated {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	user, err := c.api.CurrentUser(ctx, snap.Token)
	err = c.resolveIdentity("refresh", gen, snap.Token, user, err)

	switch {
	case err == nil:
		c.metrics.RecordRefresh(RefreshOK)
	case errors.Is(err, ErrSuperseded):
	case errors.Is(err, ErrCredentialRejected), errors.Is(err, ErrAdminRequired):
		c.metrics.RecordRefresh(RefreshRejected)
		c.log.Warn().Err(err).Msg("Session no longer valid")
	default:
		c.metrics.RecordRefresh(RefreshTransient)
		c.log.Warn().Err(err).Msg("Session refresh failed, keeping session")
	}
	return err
}

// resolveIdentity applies the outcome of an identity check started at gen
func (c *Controller) resolveIdentity(op string, gen uint64, token string, apiUser *client.User, callErr error) error {
	c.mu.Lock()

	if gen != c.gen {
		c.mu.Unlock()
		c.metrics.RecordStaleResponse(op)
		c.log.Debug().Str("operation", op).Msg("Discarding stale identity response")
		return ErrSuperseded
	}

	var (
		snap   Snapshot
		result error
	)

	switch {
	case callErr == nil && apiUser != nil && apiUser.Role == RoleAdmin:
		snap = c.applyLocked(StateAuthenticated, token, userFromAPI(apiUser))

	case callErr == nil:
		if err := c.store.clearToken(); err != nil {
			c.log.Error().Err(err).Msg("Failed to clear stored token")
		}
		snap = c.applyLocked(StateUnauthenticated, "", nil)
		result = ErrAdminRequired

	case client.IsCredentialRejected(callErr):
		if err := c.store.clearToken(); err != nil {
			c.log.Error().Err(err).Msg("Failed to clear stored token")
		}
		snap = c.applyLocked(StateUnauthenticated, "", nil)
		result = fmt.Errorf("%w: %w", ErrCredentialRejected, callErr)

	case op == "refresh":
		// Server unreachable or failing: keep the session as it is
		c.mu.Unlock()
		return fmt.Errorf("identity check failed: %w", callErr)

	default:
		// Keep the stored token so a later retry can recover the session
		snap = c.applyLocked(StateUnauthenticated, token, nil)
		result = fmt.Errorf("identity check failed: %w", callErr)
	}

	c.queueLocked(snap)
	c.mu.Unlock()
	c.flush()
	return result
}

// Login signs in with email and password. Only admins get a session; any
// token issued to another role is discarded. A second Login while one is
// resolving returns ErrLoginInProgress.
//
// Logging in replaces the current session. If the replacing login fails,
// the previous token is cleared from durable storage as well, so it cannot
// be recovered by a later Start.
func (c *Controller) Login(ctx context.Context, email, password string) (*User, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.loginGen != 0 {
		c.mu.Unlock()
		return nil, ErrLoginInProgress
	}
	if c.store.Get().State == StateLoading {
		c.mu.Unlock()
		return nil, ErrBusy
	}

	c.gen++
	gen := c.gen
	c.loginGen = gen
	replacing := c.store.Get().Token != ""
	c.queueLocked(c.applyLocked(StateLoading, "", nil))
	c.mu.Unlock()
	c.flush()

	resp, err := c.api.Login(ctx, email, password)

	c.mu.Lock()
	if c.loginGen == gen {
		c.loginGen = 0
	}
	if gen != c.gen {
		c.mu.Unlock()
		c.metrics.RecordStaleResponse("login")
		c.log.Debug().Msg("Discarding stale login response")
		return nil, ErrSuperseded
	}

	user, result := c.completeLoginLocked(resp, err)
	var state State = StateUnauthenticated
	token := ""
	if result == nil {
		state = StateAuthenticated
		token = resp.Token
	} else if replacing {
		if err := c.store.clearToken(); err != nil {
			c.log.Error().Err(err).Msg("Failed to clear replaced token")
		}
	}
	c.queueLocked(c.applyLocked(state, token, user))
	c.mu.Unlock()
	c.flush()

	if result != nil {
		c.log.Warn().Err(result).Str("email", email).Msg("Login failed")
		return nil, result
	}
	c.log.Info().Str("email", user.Email).Msg("Logged in")
	return user, nil
}

// completeLoginLocked validates a login response and persists its token.
// It returns the user on success.
func (c *Controller) completeLoginLocked(resp *client.LoginResponse, err error) (*User, error) {
	if err != nil {
		msg := client.ServerMessage(err)
		if msg == "" {
			msg = ErrLoginFailed.Error()
		}
		return nil, &LoginError{Message: msg, Err: err}
	}
	if resp == nil || resp.User == nil || resp.Token == "" {
		return nil, &LoginError{Message: ErrLoginFailed.Error(), Err: errors.New("incomplete login response")}
	}
	if resp.User.Role != RoleAdmin {
		return nil, ErrAdminRequired
	}
	if err := c.store.persistToken(resp.Token); err != nil {
		return nil, fmt.Errorf("failed to save authentication token: %w", err)
	}
	return userFromAPI(resp.User), nil
}

// Logout clears the session and the stored token. Logging out while
// already logged out changes nothing.
func (c *Controller) Logout() error {
	c.mu.Lock()
	c.gen++
	c.loginGen = 0

	prev := c.store.Get()
	clearErr := c.store.clearToken()
	snap := c.applyLocked(StateUnauthenticated, "", nil)
	if !prev.equal(snap) {
		c.queueLocked(snap)
	}
	c.mu.Unlock()
	c.flush()

	if clearErr != nil {
		return fmt.Errorf("failed to clear stored token: %w", clearErr)
	}
	return nil
}

// handleResponse is the client hook: a 401 from any call ends the session
// locally, without another request.
func (c *Controller) handleResponse(resp *http.Response) {
	if resp.StatusCode != http.StatusUnauthorized {
		return
	}
	c.forceLogout()
}

func (c *Controller) forceLogout() {
	c.mu.Lock()
	snap := c.store.Get()
	revocable := snap.State == StateAuthenticated ||
		(snap.State == StateUnauthenticated && snap.Token != "")
	if c.closed || !revocable {
		// Nothing to revoke, or a login/recovery is deciding the session
		c.mu.Unlock()
		return
	}

	c.gen++
	c.loginGen = 0
	if err := c.store.clearToken(); err != nil {
		c.log.Debug().Err(err).Msg("Failed to clear stored token")
	}
	c.queueLocked(c.applyLocked(StateUnauthenticated, "", nil))
	c.mu.Unlock()

	c.log.Debug().Msg("Session ended by 401 response")
	c.flush()
}

// Close cancels the refresh timer, removes the client hook and makes every
// later operation fail with ErrClosed. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.stopTimerLocked()
	c.mu.Unlock()

	c.unregister()
	c.cancel()
}
