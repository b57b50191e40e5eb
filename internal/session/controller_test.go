package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultadmin/consultadmin/internal/cli/client"
)

type harness struct {
	api     *fakeAPI
	storage *memStorage
	clock   *fakeClock
	events  *recorder
	ctrl    *Controller
}

func newHarness(t *testing.T, storedToken string, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		api:     &fakeAPI{},
		storage: &memStorage{token: storedToken},
		clock:   &fakeClock{},
		events:  &recorder{},
	}
	opts = append([]Option{WithAfterFunc(h.clock.AfterFunc)}, opts...)
	ctrl, err := New(h.api, h.storage, opts...)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	ctrl.Subscribe(h.events.add)
	h.ctrl = ctrl
	return h
}

func (h *harness) loginAsAdmin(t *testing.T) {
	t.Helper()
	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		return &client.LoginResponse{Token: "admin-token", User: adminUser()}, nil
	}
	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	require.True(t, h.ctrl.Snapshot().IsAuthenticated)
}

func TestStart_NoStoredToken(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.ctrl.Start(context.Background()))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.Loading)
	assert.False(t, snap.IsAuthenticated)
	_, me := h.api.calls()
	assert.Zero(t, me, "no identity check without a token")
	assert.Zero(t, h.clock.count(), "no refresh timer")
}

func TestStart_RecoversAdminSession(t *testing.T) {
	h := newHarness(t, "stored")
	h.api.meFn = func(context.Context, string) (*client.User, error) { return adminUser(), nil }

	require.NoError(t, h.ctrl.Start(context.Background()))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.Loading)
	assert.Equal(t, "stored", snap.Token)
	require.NotNil(t, snap.User)
	assert.Equal(t, "ada@example.com", snap.User.Email)

	assert.Equal(t, []string{"stored"}, h.api.meTokens)
	assert.Equal(t, []State{StateLoading, StateAuthenticated}, h.events.states())

	require.Equal(t, 1, h.clock.count())
	assert.Equal(t, DefaultRefreshInterval, h.clock.last().d)
}

func TestStart_LoadingVisibleWhileResolving(t *testing.T) {
	h := newHarness(t, "stored")
	h.api.meFn = func(context.Context, string) (*client.User, error) {
		snap := h.ctrl.Snapshot()
		assert.Equal(t, StateLoading, snap.State)
		assert.True(t, snap.Loading)
		assert.False(t, snap.IsAuthenticated)
		return adminUser(), nil
	}

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.False(t, h.ctrl.Snapshot().Loading)
}

func TestStart_TransientFailureKeepsToken(t *testing.T) {
	h := newHarness(t, "stored")
	h.api.meFn = func(context.Context, string) (*client.User, error) { return nil, errNetwork }

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.False(t, client.IsCredentialRejected(err))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.Loading)
	assert.False(t, snap.IsAuthenticated)
	assert.Equal(t, "stored", h.storage.stored(), "token survives a transient failure")
	assert.Zero(t, h.storage.clears)

	// A later retry recovers the session
	h.api.meFn = func(context.Context, string) (*client.User, error) { return adminUser(), nil }
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.True(t, h.ctrl.Snapshot().IsAuthenticated)
}

func TestStart_CredentialRejectedClearsToken(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			h := newHarness(t, "stored")
			h.api.meFn = func(context.Context, string) (*client.User, error) { return nil, statusErr(code) }

			err := h.ctrl.Start(context.Background())
			require.ErrorIs(t, err, ErrCredentialRejected)
			assert.Equal(t, code, client.StatusCode(err))

			snap := h.ctrl.Snapshot()
			assert.Equal(t, StateUnauthenticated, snap.State)
			assert.Empty(t, snap.Token)
			assert.Empty(t, h.storage.stored())
		})
	}
}

func TestStart_NonAdminClearsToken(t *testing.T) {
	h := newHarness(t, "stored")
	h.api.meFn = func(context.Context, string) (*client.User, error) { return seekerUser(), nil }

	err := h.ctrl.Start(context.Background())
	require.ErrorIs(t, err, ErrAdminRequired)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)
	assert.Empty(t, h.storage.stored())
}

func TestStart_StorageFailure(t *testing.T) {
	h := newHarness(t, "")
	h.storage.err = errors.New("keychain locked")

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keychain locked")
	assert.Equal(t, StateUnauthenticated, h.ctrl.Snapshot().State)
}

func TestStart_WhileAuthenticatedIsNoop(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	_, me := h.api.calls()
	assert.Zero(t, me)
	assert.True(t, h.ctrl.Snapshot().IsAuthenticated)
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t, "")
	h.api.loginFn = func(_ context.Context, email, password string) (*client.LoginResponse, error) {
		assert.Equal(t, "ada@example.com", email)
		assert.Equal(t, "secret", password)
		return &client.LoginResponse{Token: "abc", User: adminUser()}, nil
	}

	user, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Ada Admin", user.Name)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "abc", snap.Token)
	assert.Equal(t, "abc", h.ctrl.Store().Token())
	assert.Equal(t, "abc", h.storage.stored())
	assert.Equal(t, []State{StateLoading, StateAuthenticated}, h.events.states())
	assert.Equal(t, 1, h.clock.count(), "refresh timer armed")
}

func TestLogin_NonAdminRejected(t *testing.T) {
	h := newHarness(t, "")
	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		return &client.LoginResponse{Token: "abc", User: seekerUser()}, nil
	}

	user, err := h.ctrl.Login(context.Background(), "sam@example.com", "secret")
	require.ErrorIs(t, err, ErrAdminRequired)
	assert.Equal(t, "admin privileges required", err.Error())
	assert.Nil(t, user)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, snap.Token)
	assert.Empty(t, h.storage.stored())
	assert.Zero(t, h.storage.saves, "issued token is never persisted")
	assert.Zero(t, h.clock.count())
}

func TestLogin_RoleGateForEveryNonAdminRole(t *testing.T) {
	for _, role := range []string{"seeker", "provider", "", "Admin", "superadmin"} {
		t.Run("role="+role, func(t *testing.T) {
			h := newHarness(t, "")
			h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
				return &client.LoginResponse{Token: "issued", User: &client.User{ID: "x", Role: role}}, nil
			}

			_, err := h.ctrl.Login(context.Background(), "x@example.com", "pw")
			require.ErrorIs(t, err, ErrAdminRequired)
			assert.False(t, h.ctrl.Snapshot().IsAuthenticated)
			assert.Zero(t, h.storage.saves)
		})
	}
}

func TestLogin_ServerMessageSurfaced(t *testing.T) {
	h := newHarness(t, "")
	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		return nil, &client.APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid email or password"}
	}

	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.Loading)
}

func TestLogin_GenericMessageOnNetworkFailure(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
	require.Error(t, err)
	assert.Equal(t, "login failed", err.Error())
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.ErrorIs(t, err, errNetwork)
}

func TestLogin_IncompleteResponse(t *testing.T) {
	h := newHarness(t, "")
	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		return &client.LoginResponse{User: adminUser()}, nil
	}

	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.False(t, h.ctrl.Snapshot().IsAuthenticated)
	assert.Zero(t, h.storage.saves)
}

func TestLogin_DuplicateSubmitIgnored(t *testing.T) {
	h := newHarness(t, "")
	started := make(chan struct{})
	release := make(chan struct{})
	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		close(started)
		<-release
		return &client.LoginResponse{Token: "abc", User: adminUser()}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
		done <- err
	}()
	<-started

	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
	require.ErrorIs(t, err, ErrLoginInProgress)

	close(release)
	require.NoError(t, <-done)

	login, _ := h.api.calls()
	assert.Equal(t, 1, login, "the duplicate never reached the server")
	assert.True(t, h.ctrl.Snapshot().IsAuthenticated)
}

func TestLogin_SupersededByLogout(t *testing.T) {
	h := newHarness(t, "")
	started := make(chan struct{})
	release := make(chan struct{})
	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		close(started)
		<-release
		return &client.LoginResponse{Token: "late", User: adminUser()}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
		done <- err
	}()
	<-started

	require.NoError(t, h.ctrl.Logout())
	close(release)

	require.ErrorIs(t, <-done, ErrSuperseded)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, snap.Token)
	assert.Empty(t, h.storage.stored(), "late token never persisted")
	assert.Zero(t, h.clock.count())
}

func TestLogin_WhileRecoveryInFlight(t *testing.T) {
	h := newHarness(t, "stored")
	started := make(chan struct{})
	release := make(chan struct{})
	h.api.meFn = func(context.Context, string) (*client.User, error) {
		close(started)
		<-release
		return adminUser(), nil
	}

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Start(context.Background()) }()
	<-started

	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, h.ctrl.Start(context.Background()), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.True(t, h.ctrl.Snapshot().IsAuthenticated)
}

func TestLogin_FailedReplacementClearsPreviousToken(t *testing.T) {
	tests := []struct {
		name    string
		loginFn func(context.Context, string, string) (*client.LoginResponse, error)
	}{
		{name: "wrong password", loginFn: func(context.Context, string, string) (*client.LoginResponse, error) {
			return nil, statusErr(http.StatusUnauthorized)
		}},
		{name: "network failure", loginFn: func(context.Context, string, string) (*client.LoginResponse, error) {
			return nil, errNetwork
		}},
		{name: "non-admin", loginFn: func(context.Context, string, string) (*client.LoginResponse, error) {
			return &client.LoginResponse{Token: "seeker-token", User: seekerUser()}, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			h.loginAsAdmin(t)
			require.Equal(t, "admin-token", h.storage.stored())

			h.api.loginFn = tt.loginFn
			_, err := h.ctrl.Login(context.Background(), "other@example.com", "secret")
			require.Error(t, err)

			assert.Empty(t, h.storage.stored(), "replaced session is not left in storage")
			assert.Empty(t, h.ctrl.Snapshot().Token)

			_, meBefore := h.api.calls()
			require.NoError(t, h.ctrl.Start(context.Background()))
			_, meAfter := h.api.calls()
			assert.Equal(t, meBefore, meAfter, "nothing left to recover")
			assert.False(t, h.ctrl.Snapshot().IsAuthenticated)
		})
	}
}

func TestLogin_SuccessfulReplacementStoresNewToken(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)

	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		return &client.LoginResponse{Token: "second-token", User: adminUser()}, nil
	}
	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)

	assert.Equal(t, "second-token", h.storage.stored())
	assert.Equal(t, "second-token", h.ctrl.Snapshot().Token)
}

func TestLogin_FailureWithoutPreviousSessionLeavesStorageAlone(t *testing.T) {
	h := newHarness(t, "")
	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		return nil, statusErr(http.StatusUnauthorized)
	}

	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.Zero(t, h.storage.clears)
	assert.Zero(t, h.storage.saves)
}

func TestLogout_ClearsSession(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)
	timer := h.clock.last()

	require.NoError(t, h.ctrl.Logout())

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.Token)
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, h.storage.stored())
	assert.True(t, timer.isStopped())
}

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.ctrl.Start(context.Background()))
	before := h.ctrl.Snapshot()
	events := h.events.len()

	require.NoError(t, h.ctrl.Logout())
	require.NoError(t, h.ctrl.Logout())

	assert.Equal(t, before, h.ctrl.Snapshot())
	assert.Equal(t, events, h.events.len(), "no change, no notification")
	assert.Zero(t, h.storage.saves)
	assert.Equal(t, 2, h.storage.clears)
}

func TestRefresh_RevalidatesWithoutLoading(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)

	renamed := adminUser()
	renamed.Name = "Ada Lovelace"
	h.api.meFn = func(_ context.Context, token string) (*client.User, error) {
		assert.Equal(t, "admin-token", token)
		return renamed, nil
	}

	loadingSeen := &recorder{}
	h.ctrl.Subscribe(loadingSeen.add)

	require.NoError(t, h.ctrl.Refresh(context.Background()))

	snap := h.ctrl.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "Ada Lovelace", snap.User.Name)
	assert.False(t, loadingSeen.anyLoading(), "refresh never toggles loading")
	assert.Equal(t, 1, h.clock.count(), "timer left as is")
}

func TestRefresh_TransientFailureKeepsSession(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)
	h.api.meFn = func(context.Context, string) (*client.User, error) { return nil, statusErr(http.StatusBadGateway) }

	err := h.ctrl.Refresh(context.Background())
	require.Error(t, err)

	snap := h.ctrl.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "admin-token", h.storage.stored())
	assert.False(t, h.clock.last().isStopped())
}

func TestRefresh_RejectedEndsSession(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)
	timer := h.clock.last()
	h.api.meFn = func(context.Context, string) (*client.User, error) { return nil, statusErr(http.StatusUnauthorized) }

	require.ErrorIs(t, h.ctrl.Refresh(context.Background()), ErrCredentialRejected)

	assert.Equal(t, StateUnauthenticated, h.ctrl.Snapshot().State)
	assert.Empty(t, h.storage.stored())
	assert.True(t, timer.isStopped())
}

func TestRefresh_NoopWhenNotAuthenticated(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.ctrl.Refresh(context.Background()))
	_, me := h.api.calls()
	assert.Zero(t, me)
}

func TestRefreshTimer_FiresAndRearms(t *testing.T) {
	h := newHarness(t, "", WithRefreshInterval(time.Minute))
	h.loginAsAdmin(t)
	h.api.meFn = func(context.Context, string) (*client.User, error) { return adminUser(), nil }

	first := h.clock.last()
	assert.Equal(t, time.Minute, first.d)

	first.fire()

	_, me := h.api.calls()
	assert.Equal(t, 1, me)
	assert.Equal(t, 2, h.clock.count(), "next refresh scheduled")
	assert.True(t, h.ctrl.Snapshot().IsAuthenticated)

	h.clock.last().fire()
	_, me = h.api.calls()
	assert.Equal(t, 2, me)
}

func TestRefreshTimer_NoopAfterLogout(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)
	h.api.meFn = func(context.Context, string) (*client.User, error) { return adminUser(), nil }
	pending := h.clock.last()

	require.NoError(t, h.ctrl.Logout())
	events := h.events.len()

	// The timer had already expired when it was cancelled
	pending.fire()

	_, me := h.api.calls()
	assert.Zero(t, me, "no refresh call after logout")
	assert.Equal(t, StateUnauthenticated, h.ctrl.Snapshot().State)
	assert.Equal(t, events, h.events.len())
	assert.Equal(t, 1, h.clock.count(), "nothing re-armed")
}

func TestRefreshTimer_OldTimerIgnoredAfterRelogin(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)
	old := h.clock.last()

	require.NoError(t, h.ctrl.Logout())
	h.loginAsAdmin(t)
	require.Equal(t, 2, h.clock.count())

	old.fire()
	_, me := h.api.calls()
	assert.Zero(t, me, "a cancelled timer from an earlier session does nothing")
	assert.Equal(t, 2, h.clock.count())
}

func TestRefresh_StaleResponseAfterLogout(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)

	started := make(chan struct{})
	release := make(chan struct{})
	h.api.meFn = func(context.Context, string) (*client.User, error) {
		close(started)
		<-release
		return adminUser(), nil
	}

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Refresh(context.Background()) }()
	<-started

	require.NoError(t, h.ctrl.Logout())
	close(release)

	require.ErrorIs(t, <-done, ErrSuperseded)
	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, h.storage.stored())
}

func TestForcedLogout_On401(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)
	timer := h.clock.last()
	loginCalls, meCalls := h.api.calls()

	h.api.respond(http.StatusUnauthorized)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, snap.Token)
	assert.Empty(t, h.storage.stored())
	assert.True(t, timer.isStopped())

	login, me := h.api.calls()
	assert.Equal(t, loginCalls, login, "forced logout sends nothing")
	assert.Equal(t, meCalls, me)
}

func TestForcedLogout_OtherStatusesPassThrough(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)

	for _, code := range []int{http.StatusOK, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		h.api.respond(code)
		assert.True(t, h.ctrl.Snapshot().IsAuthenticated, "status %d must not end the session", code)
	}
	assert.Equal(t, "admin-token", h.storage.stored())
}

func TestForcedLogout_ClearsTokenKeptAfterTransientFailure(t *testing.T) {
	h := newHarness(t, "stored")
	require.Error(t, h.ctrl.Start(context.Background()))
	require.Equal(t, "stored", h.storage.stored())

	h.api.respond(http.StatusUnauthorized)

	assert.Empty(t, h.storage.stored())
	assert.Empty(t, h.ctrl.Snapshot().Token)
}

func TestForcedLogout_IgnoredWhileLoginResolving(t *testing.T) {
	h := newHarness(t, "")
	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		// A stale call from the previous session fails meanwhile
		h.api.respond(http.StatusUnauthorized)
		return &client.LoginResponse{Token: "abc", User: adminUser()}, nil
	}

	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.True(t, h.ctrl.Snapshot().IsAuthenticated)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	h := newHarness(t, "")
	extra := &recorder{}
	unsubscribe := h.ctrl.Subscribe(extra.add)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, 1, extra.len())

	unsubscribe()
	h.loginAsAdmin(t)
	assert.Equal(t, 1, extra.len())
}

func TestSubscribe_ListenerMayCallController(t *testing.T) {
	h := newHarness(t, "")
	h.ctrl.Subscribe(func(s Snapshot) {
		if s.State == StateAuthenticated {
			_ = h.ctrl.Logout()
		}
	})

	h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
		return &client.LoginResponse{Token: "abc", User: adminUser()}, nil
	}
	_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, h.ctrl.Snapshot().State)
}

func TestSubscribe_DeliveryFollowsChangeOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, "")
		h.api.loginFn = func(context.Context, string, string) (*client.LoginResponse, error) {
			return &client.LoginResponse{Token: "abc", User: adminUser()}, nil
		}

		// A slow listener holds up delivery of the login result while a
		// 401 from another call ends the session
		reached := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		h.ctrl.Subscribe(func(s Snapshot) {
			if s.State == StateAuthenticated {
				once.Do(func() {
					close(reached)
					<-release
				})
			}
		})

		done := make(chan error, 1)
		go func() {
			_, err := h.ctrl.Login(context.Background(), "ada@example.com", "secret")
			done <- err
		}()
		<-reached

		h.api.respond(http.StatusUnauthorized)
		require.Equal(t, StateUnauthenticated, h.ctrl.Snapshot().State)

		close(release)
		require.NoError(t, <-done)

		assert.Equal(t,
			[]State{StateLoading, StateAuthenticated, StateUnauthenticated},
			h.events.states(),
			"listener ends on the store's state")
		assert.Equal(t, h.ctrl.Snapshot().State, h.events.last().State)
		assert.True(t, h.events.versionsIncrease())
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, "")
	h.loginAsAdmin(t)
	timer := h.clock.last()
	require.True(t, h.api.hookInstalled())

	h.ctrl.Close()
	h.ctrl.Close()

	assert.False(t, h.api.hookInstalled(), "hook removed on close")
	assert.True(t, timer.isStopped())
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrClosed)
	_, err := h.ctrl.Login(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrClosed)

	// A new controller can take over the client
	next, err := New(h.api, h.storage, WithAfterFunc(h.clock.AfterFunc))
	require.NoError(t, err)
	next.Close()
}

func TestNew_SingleHookPerClient(t *testing.T) {
	h := newHarness(t, "")

	_, err := New(h.api, h.storage)
	require.ErrorIs(t, err, client.ErrHookRegistered)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	h := newHarness(t, "", WithRecorder(metrics))

	h.loginAsAdmin(t)
	h.api.meFn = func(context.Context, string) (*client.User, error) { return nil, errNetwork }
	require.Error(t, h.ctrl.Refresh(context.Background()))
	h.api.respond(http.StatusUnauthorized)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("loading")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("authenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("unauthenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.refreshes.WithLabelValues(RefreshTransient)))
}
