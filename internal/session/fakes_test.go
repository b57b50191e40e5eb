package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/consultadmin/consultadmin/internal/cli/client"
)

var errNetwork = errors.New("failed to send request: dial tcp 127.0.0.1:443: connect: connection refused")

func adminUser() *client.User {
	return &client.User{ID: "u-1", Name: "Ada Admin", Email: "ada@example.com", Role: "admin"}
}

func seekerUser() *client.User {
	return &client.User{ID: "u-2", Name: "Sam Seeker", Email: "sam@example.com", Role: "seeker"}
}

func statusErr(code int) error {
	return &client.APIError{StatusCode: code, Message: http.StatusText(code)}
}

// fakeAPI stands in for the HTTP client
type fakeAPI struct {
	mu         sync.Mutex
	loginFn    func(ctx context.Context, email, password string) (*client.LoginResponse, error)
	meFn       func(ctx context.Context, token string) (*client.User, error)
	loginCalls int
	meCalls    int
	meTokens   []string
	hook       client.ResponseHook
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (*client.LoginResponse, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errNetwork
	}
	return fn(ctx, email, password)
}

func (f *fakeAPI) CurrentUser(ctx context.Context, token string) (*client.User, error) {
	f.mu.Lock()
	f.meCalls++
	f.meTokens = append(f.meTokens, token)
	fn := f.meFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errNetwork
	}
	return fn(ctx, token)
}

func (f *fakeAPI) OnResponse(hook client.ResponseHook) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hook != nil {
		return nil, client.ErrHookRegistered
	}
	f.hook = hook
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.hook = nil
	}, nil
}

// respond simulates some other API call coming back with status
func (f *fakeAPI) respond(status int) {
	f.mu.Lock()
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(&http.Response{StatusCode: status})
	}
}

func (f *fakeAPI) calls() (login, me int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.meCalls
}

func (f *fakeAPI) hookInstalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hook != nil
}

// memStorage is durable storage kept in memory
type memStorage struct {
	mu     sync.Mutex
	token  string
	saves  int
	clears int
	err    error
}

func (m *memStorage) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.err
}

func (m *memStorage) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.token = token
	return nil
}

func (m *memStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.token = ""
	return nil
}

func (m *memStorage) stored() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// fakeClock hands out timers that only fire when the test says so
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fire runs the callback even when stopped, like a timer that had already
// expired when Stop was called
func (t *fakeTimer) fire() {
	t.f()
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// recorder collects snapshots delivered to a subscriber
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) add(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.snaps))
	for i, s := range r.snaps {
		out[i] = s.State
	}
	return out
}

func (r *recorder) anyLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.snaps {
		if s.Loading {
			return true
		}
	}
	return false
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) versionsIncrease() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 1; i < len(r.snaps); i++ {
		if r.snaps[i].Version <= r.snaps[i-1].Version {
			return false
		}
	}
	return true
}
