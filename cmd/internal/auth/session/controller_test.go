package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasklane/cmd/internal/access"
	authapi "tasklane/cmd/internal/auth/api"
	"tasklane/cmd/internal/auth/credential"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func mint(t *testing.T, mc jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func userToken(t *testing.T, sub, role string) string {
	return mint(t, jwt.MapClaims{
		"sub":      sub,
		"username": sub + "-name",
		"role":     role,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
}

type fakeAPI struct {
	mu           sync.Mutex
	loginCalls   int
	refreshCalls int
	loginPair    authapi.TokenPair
	loginErr     error
	refreshPair  authapi.TokenPair
	refreshErr   error
	gate         chan struct{}
	entered      chan struct{}
}

func (f *fakeAPI) Login(ctx context.Context, username, password string, rememberMe bool) (authapi.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.loginPair, f.loginErr
}

func (f *fakeAPI) Refresh(ctx context.Context, bearer, refresh string, rememberMe bool) (authapi.TokenPair, error) {
	f.mu.Lock()
	f.refreshCalls++
	gate, entered := f.gate, f.entered
	pair, err := f.refreshPair, f.refreshErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return pair, err
}

func (f *fakeAPI) calls() (login, refresh int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.refreshCalls
}

type fixture struct {
	perTab  *credential.MemoryTier
	durable *credential.MemoryTier
	store   *credential.Store
	api     *fakeAPI
	allowed map[string]bool
	ctrl    *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		perTab:  credential.NewMemoryTier(),
		durable: credential.NewMemoryTier(),
		api:     &fakeAPI{},
		allowed: map[string]bool{},
	}
	f.store = credential.NewStore(f.perTab, f.durable)
	f.ctrl = f.controller()
	return f
}

func (f *fixture) controller() *Controller {
	verifier := access.VerifierFunc(func(ctx context.Context, rc authapi.RequestContext, projectID string) (bool, error) {
		return f.allowed[projectID], nil
	})
	return NewController(testLogger(), f.store, nil, f.api, verifier)
}

// newTab simulates a fresh tab: same durable tier, empty per-tab tier.
func (f *fixture) newTab() *Controller {
	f.perTab = credential.NewMemoryTier()
	f.store = credential.NewStore(f.perTab, f.durable)
	return f.controller()
}

func hydrated(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.ctrl.Hydrate(context.Background()))
}

func TestHydrate_NoCredentials(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	hydrated(t, f)

	assert.Equal(t, StatusAnonymous, f.ctrl.Status())
	assert.Nil(t, f.ctrl.Identity())
	login, refresh := f.api.calls()
	assert.Zero(t, login)
	assert.Zero(t, refresh)
}

func TestHydrate_OnlyOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	hydrated(t, f)
	assert.ErrorIs(t, f.ctrl.Hydrate(context.Background()), ErrAlreadyHydrated)
}

func TestHydrate_PerTabBearerWithoutNetwork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	tok := userToken(t, "u-1", "member")
	require.NoError(t, f.store.Save(context.Background(), tok, "r-1", credential.ScopePerTab))

	hydrated(t, f)

	s := f.ctrl.Snapshot()
	assert.Equal(t, StatusAuthenticated, s.Status)
	require.NotNil(t, s.Identity)
	assert.Equal(t, "u-1", s.Identity.ID)
	assert.Equal(t, credential.ScopePerTab, s.Scope)
	_, refresh := f.api.calls()
	assert.Zero(t, refresh)
}

func TestHydrate_RefreshOnlyCandidate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, "old-bearer", "r-1", credential.ScopeDurable))
	require.NoError(t, f.durable.Delete(ctx, "token"))
	require.NoError(t, f.perTab.Delete(ctx, "token", "refreshToken"))

	fresh := userToken(t, "u-2", "member")
	f.api.refreshPair = authapi.TokenPair{BearerToken: fresh, RefreshToken: "r-2"}

	hydrated(t, f)

	s := f.ctrl.Snapshot()
	assert.Equal(t, StatusAuthenticated, s.Status)
	assert.Equal(t, fresh, s.BearerToken)
	assert.Equal(t, credential.ScopeDurable, s.Scope)
	_, refresh := f.api.calls()
	assert.Equal(t, 1, refresh)

	// Written back to the durable tier: a new tab hydrates from it.
	next := f.newTab()
	require.NoError(t, next.Hydrate(ctx))
	assert.Equal(t, StatusAuthenticated, next.Status())
}

func TestHydrate_RefreshFailureClearsStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.durable.SetAll(ctx, map[string]string{"refreshToken": "r-1"}))
	f.api.refreshErr = &authapi.APIError{Status: 401}

	hydrated(t, f)

	assert.Equal(t, StatusAnonymous, f.ctrl.Status())
	cand, err := f.store.LoadBootCandidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, credential.CandidateNone, cand.Kind)
}

func TestHydrate_UndecodableBearerClearsStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, "not-a-token", "r-1", credential.ScopeDurable))

	hydrated(t, f)

	assert.Equal(t, StatusAnonymous, f.ctrl.Status())
	cand, err := f.store.LoadBootCandidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, credential.CandidateNone, cand.Kind)
}

func TestHydrate_ClosedMidFlightDiscardsResult(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.durable.SetAll(ctx, map[string]string{"refreshToken": "r-1"}))
	f.api.gate = make(chan struct{})
	f.api.entered = make(chan struct{}, 1)
	f.api.refreshPair = authapi.TokenPair{BearerToken: userToken(t, "u-3", ""), RefreshToken: "r-2"}

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Hydrate(ctx) }()

	<-f.api.entered
	f.ctrl.Close()
	close(f.api.gate)
	require.NoError(t, <-done)

	assert.Equal(t, StatusHydrating, f.ctrl.Status())
	v, ok, err := f.durable.Get(ctx, "refreshToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r-1", v)
	_, present, err := f.durable.Get(ctx, "token")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestLogin_RequiresHydration(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.ctrl.Login(context.Background(), "alice", "pw", false)
	assert.ErrorIs(t, err, ErrNotHydrated)
	login, _ := f.api.calls()
	assert.Zero(t, login)
}

func TestLogin_UndecodableTokenFallsBackToUsername(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: "not-a-token", RefreshToken: "r-1"}

	dest, err := f.ctrl.Login(context.Background(), "alice", "pw", false)
	require.NoError(t, err)

	assert.Equal(t, DestinationProjectSelection, dest.Kind)
	s := f.ctrl.Snapshot()
	assert.Equal(t, StatusAuthenticated, s.Status)
	require.NotNil(t, s.Identity)
	assert.Equal(t, "alice", s.Identity.Username)
	assert.Equal(t, "alice", s.Identity.DisplayName)
	assert.Equal(t, "not-a-token", f.ctrl.BearerToken())
}

func TestLogin_PerTabDoesNotSurviveNewTab(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}

	_, err := f.ctrl.Login(context.Background(), "alice", "pw", false)
	require.NoError(t, err)

	next := f.newTab()
	require.NoError(t, next.Hydrate(context.Background()))
	assert.Equal(t, StatusAnonymous, next.Status())
}

func TestLogin_RememberMeSurvivesNewTab(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}

	_, err := f.ctrl.Login(context.Background(), "alice", "pw", true)
	require.NoError(t, err)

	next := f.newTab()
	require.NoError(t, next.Hydrate(context.Background()))
	assert.Equal(t, StatusAuthenticated, next.Status())
	assert.Equal(t, credential.ScopeDurable, next.Snapshot().Scope)
}

func TestLogin_FailureIsUserError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	hydrated(t, f)
	f.api.loginErr = &authapi.APIError{Status: 401, Code: "invalid_credentials"}

	_, err := f.ctrl.Login(context.Background(), "alice", "bad", false)

	var ue *UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "Invalid username or password.", ue.Message)
	assert.ErrorIs(t, err, authapi.ErrInvalidCredentials)
	assert.Equal(t, StatusAnonymous, f.ctrl.Status())
}

func TestLogin_AlreadyAuthenticated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}

	_, err := f.ctrl.Login(context.Background(), "alice", "pw", false)
	require.NoError(t, err)
	_, err = f.ctrl.Login(context.Background(), "alice", "pw", false)
	assert.ErrorIs(t, err, ErrAlreadyAuthenticated)
	login, _ := f.api.calls()
	assert.Equal(t, 1, login)
}

func TestLogin_Routing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("admin", func(t *testing.T) {
		f := newFixture(t)
		hydrated(t, f)
		require.NoError(t, f.store.RememberProject(ctx, "u-1", "p-1"))
		f.allowed["p-1"] = true
		f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", "Admin")}

		dest, err := f.ctrl.Login(ctx, "alice", "pw", false)
		require.NoError(t, err)
		assert.Equal(t, Destination{Kind: DestinationAdmin}, dest)
	})

	t.Run("verified last project", func(t *testing.T) {
		f := newFixture(t)
		hydrated(t, f)
		require.NoError(t, f.store.RememberProject(ctx, "u-1", "p-1"))
		f.allowed["p-1"] = true
		f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", "member")}

		dest, err := f.ctrl.Login(ctx, "alice", "pw", false)
		require.NoError(t, err)
		assert.Equal(t, Destination{Kind: DestinationProject, ProjectID: "p-1"}, dest)
	})

	t.Run("denied project is forgotten", func(t *testing.T) {
		f := newFixture(t)
		hydrated(t, f)
		require.NoError(t, f.store.RememberProject(ctx, "u-1", "p-gone"))
		f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", "member")}

		dest, err := f.ctrl.Login(ctx, "alice", "pw", false)
		require.NoError(t, err)
		assert.Equal(t, DestinationProjectSelection, dest.Kind)

		pid, _, err := f.store.LastProject(ctx, "u-1")
		require.NoError(t, err)
		assert.Empty(t, pid)
	})

	t.Run("legacy pointer adopted", func(t *testing.T) {
		f := newFixture(t)
		hydrated(t, f)
		require.NoError(t, f.store.SetLegacyProject(ctx, "p-old"))
		f.allowed["p-old"] = true
		f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", "member")}

		dest, err := f.ctrl.Login(ctx, "alice", "pw", false)
		require.NoError(t, err)
		assert.Equal(t, Destination{Kind: DestinationProject, ProjectID: "p-old"}, dest)

		pid, legacy, err := f.store.LastProject(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "p-old", pid)
		assert.False(t, legacy)
	})
}

func TestLogout_ClearsOnlyThisUsersPointer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}
	_, err := f.ctrl.Login(ctx, "alice", "pw", true)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.RememberProject(ctx, "p-1"))
	require.NoError(t, f.store.RememberProject(ctx, "u-2", "p-2"))
	require.NoError(t, f.store.SetLegacyProject(ctx, "p-legacy"))

	require.NoError(t, f.ctrl.Logout(ctx))

	assert.Equal(t, StatusAnonymous, f.ctrl.Status())
	assert.Empty(t, f.ctrl.BearerToken())

	pid, legacy, err := f.store.LastProject(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, pid)
	assert.False(t, legacy)

	other, _, err := f.store.LastProject(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, "p-2", other)

	cand, err := f.store.LoadBootCandidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, credential.CandidateNone, cand.Kind)
}

func TestRefresh_SuccessRotatesTokens(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}
	_, err := f.ctrl.Login(ctx, "alice", "pw", true)
	require.NoError(t, err)

	fresh := mint(t, jwt.MapClaims{"sub": "u-1", "jti": "second"})
	f.api.refreshPair = authapi.TokenPair{BearerToken: fresh, RefreshToken: "r-2"}

	require.NoError(t, f.ctrl.Refresh(ctx))

	s := f.ctrl.Snapshot()
	assert.Equal(t, StatusAuthenticated, s.Status)
	assert.Equal(t, fresh, s.BearerToken)
	assert.Equal(t, "r-2", s.RefreshToken)

	cand, err := f.store.LoadBootCandidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, cand.BearerToken)
}

func TestRefresh_FailureExpires(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}
	_, err := f.ctrl.Login(ctx, "alice", "pw", true)
	require.NoError(t, err)
	f.api.refreshErr = &authapi.APIError{Status: 401}

	err = f.ctrl.Refresh(ctx)

	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, StatusExpired, f.ctrl.Status())
	assert.Nil(t, f.ctrl.Identity())
	cand, err := f.store.LoadBootCandidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, credential.CandidateNone, cand.Kind)
}

func TestRefresh_LateResultAfterLogoutIsDiscarded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}
	_, err := f.ctrl.Login(ctx, "alice", "pw", true)
	require.NoError(t, err)

	f.api.mu.Lock()
	f.api.gate = make(chan struct{})
	f.api.entered = make(chan struct{}, 1)
	f.api.refreshPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-2"}
	f.api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Refresh(ctx) }()
	<-f.api.entered

	require.NoError(t, f.ctrl.Logout(ctx))
	close(f.api.gate)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, StatusAnonymous, f.ctrl.Status())
	cand, err := f.store.LoadBootCandidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, credential.CandidateNone, cand.Kind)
}

func TestRefresh_RequiresAuthenticated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	hydrated(t, f)

	assert.ErrorIs(t, f.ctrl.Refresh(context.Background()), ErrNotAuthenticated)
}

func TestSubscribe_SeesTransitions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []Status
	unsubscribe := f.ctrl.Subscribe(func(s Session) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
		if s.Status.HasIdentity() {
			assert.NotNil(t, s.Identity)
		}
	})

	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}
	_, err := f.ctrl.Login(ctx, "alice", "pw", false)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Logout(ctx))

	unsubscribe()
	require.NoError(t, f.ctrl.Logout(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusHydrating, StatusAnonymous, StatusAuthenticated, StatusAnonymous}, seen)
}

func TestRequestContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	hydrated(t, f)

	assert.False(t, f.ctrl.RequestContext().Authenticated())

	tok := userToken(t, "u-9", "")
	f.api.loginPair = authapi.TokenPair{BearerToken: tok, RefreshToken: "r-1"}
	_, err := f.ctrl.Login(context.Background(), "alice", "pw", false)
	require.NoError(t, err)

	rc := f.ctrl.RequestContext()
	assert.Equal(t, tok, rc.BearerToken)
	assert.Equal(t, "u-9", rc.UserID)
}

func TestRunRefreshLoop_RefreshesAheadOfExpiry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.ctrl = NewController(testLogger(), f.store, nil, f.api, nil,
		WithConfig(Config{RefreshLead: time.Minute, MinRefreshGap: time.Hour}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hydrated(t, f)
	soon := mint(t, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(30 * time.Second).Unix()})
	f.api.loginPair = authapi.TokenPair{BearerToken: soon, RefreshToken: "r-1"}
	f.api.refreshPair = authapi.TokenPair{
		BearerToken:  mint(t, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(time.Hour).Unix()}),
		RefreshToken: "r-2",
	}

	var stopped atomic.Bool
	go func() {
		f.ctrl.RunRefreshLoop(ctx)
		stopped.Store(true)
	}()

	_, err := f.ctrl.Login(ctx, "alice", "pw", false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, n := f.api.calls()
		return n == 1 && f.ctrl.Status() == StatusAuthenticated
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "r-2", f.ctrl.Snapshot().RefreshToken)

	cancel()
	require.Eventually(t, stopped.Load, time.Second, 10*time.Millisecond)
	_, n := f.api.calls()
	assert.Equal(t, 1, n)
}

func TestUserError_Unwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("boom")
	err := error(&UserError{Message: "nope", Err: inner})

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "nope")
}

// gatedTier holds every SetAll until release is closed.
type gatedTier struct {
	*credential.MemoryTier
	entered chan struct{}
	release chan struct{}
}

func newGatedTier() *gatedTier {
	return &gatedTier{
		MemoryTier: credential.NewMemoryTier(),
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
}

func (g *gatedTier) SetAll(ctx context.Context, kv map[string]string) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.MemoryTier.SetAll(ctx, kv)
}

type refusingDeleteTier struct {
	*credential.MemoryTier
}

func (refusingDeleteTier) Delete(context.Context, ...string) error {
	return errors.New("delete refused")
}

func TestLogin_SlowStorageDoesNotBlockReaders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	gated := newGatedTier()
	f.store = credential.NewStore(gated, f.durable)
	f.ctrl = f.controller()
	ctx := context.Background()
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Login(ctx, "alice", "pw", false)
		done <- err
	}()
	<-gated.entered

	read := make(chan Status, 1)
	go func() {
		_ = f.ctrl.BearerToken()
		read <- f.ctrl.Status()
	}()
	select {
	case st := <-read:
		assert.Equal(t, StatusAnonymous, st)
	case <-time.After(time.Second):
		t.Fatal("status read waited on a credential write")
	}

	close(gated.release)
	require.NoError(t, <-done)
	assert.Equal(t, StatusAuthenticated, f.ctrl.Status())
}

func TestLogout_DuringSlowSaveLeavesNoCredentials(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	gated := newGatedTier()
	f.store = credential.NewStore(gated, f.durable)
	f.ctrl = f.controller()
	ctx := context.Background()
	hydrated(t, f)
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", ""), RefreshToken: "r-1"}

	loginDone := make(chan struct{})
	go func() {
		_, _ = f.ctrl.Login(ctx, "alice", "pw", false)
		close(loginDone)
	}()
	<-gated.entered

	logoutDone := make(chan error, 1)
	go func() { logoutDone <- f.ctrl.Logout(ctx) }()
	close(gated.release)
	<-loginDone
	require.NoError(t, <-logoutDone)

	assert.Equal(t, StatusAnonymous, f.ctrl.Status())
	cand, err := f.store.LoadBootCandidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, credential.CandidateNone, cand.Kind)
}

func TestLogin_LegacyPointerCleanupFailureIsLogged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	durable := refusingDeleteTier{MemoryTier: credential.NewMemoryTier()}
	f.store = credential.NewStore(credential.NewMemoryTier(), durable)
	var logs bytes.Buffer
	f.ctrl = NewController(slog.New(slog.NewJSONHandler(&logs, nil)), f.store, nil, f.api,
		access.VerifierFunc(func(context.Context, authapi.RequestContext, string) (bool, error) { return true, nil }))
	ctx := context.Background()
	hydrated(t, f)
	require.NoError(t, f.store.SetLegacyProject(ctx, "p-old"))
	f.api.loginPair = authapi.TokenPair{BearerToken: userToken(t, "u-1", "member")}

	dest, err := f.ctrl.Login(ctx, "alice", "pw", false)
	require.NoError(t, err)

	assert.Equal(t, Destination{Kind: DestinationProject, ProjectID: "p-old"}, dest)
	assert.Contains(t, logs.String(), "session.route.forget_legacy_failed")
	pid, legacy, err := f.store.LastProject(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, "p-old", pid)
	assert.True(t, legacy)
}
