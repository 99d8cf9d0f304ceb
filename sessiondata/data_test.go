package sessiondata_test

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-sso-client/authstate"
	"github.com/jrsteele09/go-sso-client/events"
	"github.com/jrsteele09/go-sso-client/idp"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/sessiondata"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/store"
	"github.com/jrsteele09/go-sso-client/store/repofake"
	"github.com/jrsteele09/go-sso-client/token/tokentest"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type testFixture struct {
	repo     *repofake.FakeStoreRepo
	data     *sessiondata.Data
	provider *idp.IdentityProvider
	idToken  string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	provider, err := idp.New(
		"https://idp.example.com/.well-known/openid-configuration",
		"client-1", "secret-1",
		"http://127.0.0.1:8765/callback",
		"http://127.0.0.1:8765/logout",
		"openid offline_access",
	)
	require.NoError(t, err)

	repo := repofake.NewFakeStoreRepo(t.Name())
	return &testFixture{
		repo:     repo,
		data:     sessiondata.New(repo),
		provider: provider,
		idToken:  tokentest.IDToken(t, testNow, time.Hour),
	}
}

func testDiscovery() *oauth2.DiscoveryMetadata {
	return &oauth2.DiscoveryMetadata{
		Issuer:                "https://idp.example.com",
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		TokenEndpoint:         "https://idp.example.com/token",
		EndSessionEndpoint:    "https://idp.example.com/logout",
	}
}

func (f *testFixture) tokenResponse() *oauth2.TokenResponse {
	return &oauth2.TokenResponse{
		AccessToken:  utils.Ptr("at-1"),
		IdToken:      utils.Ptr(f.idToken),
		RefreshToken: utils.Ptr("rt-1"),
		ExpiresIn:    3600,
	}
}

// populate puts the fixture in a fully authorized, initialized state.
func (f *testFixture) populate(t *testing.T) {
	t.Helper()
	f.data.SetIdentityProvider(f.provider)
	f.data.AttachDiscovery(testDiscovery(), testDiscovery().EndSessionEndpoint)
	f.data.UpdateAuthState(f.tokenResponse(), testNow)
	f.data.SetPostLogoutTarget("app://after-logout")
	require.NotNil(t, f.data.Claims())
}

func TestRoundTrip(t *testing.T) {
	f := setupTestFixture(t)
	f.populate(t)
	f.data.SetInitOngoing(true)
	f.data.SetNetworkAvailable(false)

	reread := sessiondata.New(f.repo)
	require.NoError(t, reread.ReadFromDurableStore())

	require.Equal(t, f.data.AuthState(), reread.AuthState())
	require.Equal(t, f.provider.Registration(), reread.IdentityProvider().Registration())
	require.Equal(t, f.data.Claims().Subject, reread.Claims().Subject)
	require.Equal(t, f.data.LogoutEndpoint(), reread.LogoutEndpoint())
	require.Equal(t, "app://after-logout", reread.PostLogoutTarget())
	require.True(t, reread.InitOngoing())
	require.False(t, reread.NetworkAvailable())
}

func TestWriteIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	f.populate(t)

	require.NoError(t, f.data.WriteToDurableStore())
	first, err := f.repo.GetAll()
	require.NoError(t, err)

	require.NoError(t, f.data.WriteToDurableStore())
	second, err := f.repo.GetAll()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDefaults(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.data.ReadFromDurableStore())
	require.True(t, f.data.NetworkAvailable())
	require.False(t, f.data.InitOngoing())
	require.Nil(t, f.data.IdentityProvider())
	require.False(t, f.data.AuthState().IsAuthorized())
	require.Nil(t, f.data.Claims())
}

func TestMalformedFieldsAreIgnored(t *testing.T) {
	f := setupTestFixture(t)
	f.populate(t)

	f.repo.Set(store.KeyIdentityProvider, "{broken")
	f.repo.Set(store.KeyNetworkAvailable, "maybe")
	f.repo.Set(store.KeyClaims, "[]")

	reread := sessiondata.New(f.repo)
	require.NoError(t, reread.ReadFromDurableStore())
	require.Nil(t, reread.IdentityProvider())
	require.True(t, reread.NetworkAvailable())
	require.Equal(t, "at-1", utils.Value(reread.AuthState().AccessToken()))
	require.NotNil(t, reread.Claims())

	f.repo.Set(store.KeyAuthState, "not json")
	require.NoError(t, reread.ReadFromDurableStore())
	require.False(t, reread.AuthState().IsAuthorized())
	require.Equal(t, testDiscovery().EndSessionEndpoint, reread.LogoutEndpoint())
}

func TestClaimsCache(t *testing.T) {
	t.Run("cached claims are reused for the same id token", func(t *testing.T) {
		f := setupTestFixture(t)
		f.populate(t)
		_, ok, err := f.repo.Get(store.KeyClaims)
		require.NoError(t, err)
		require.True(t, ok)

		reread := sessiondata.New(f.repo)
		require.NoError(t, reread.ReadFromDurableStore())
		writes := f.repo.Writes()
		require.NotNil(t, reread.Claims())
		require.Equal(t, writes, f.repo.Writes())
	})

	t.Run("new token response invalidates claims", func(t *testing.T) {
		f := setupTestFixture(t)
		f.populate(t)
		before := f.data.Claims()

		resp := f.tokenResponse()
		resp.IdToken = utils.Ptr(tokentest.IDToken(t, testNow.Add(time.Minute), 2*time.Hour))
		f.data.UpdateAuthState(resp, testNow)
		after := f.data.Claims()
		require.NotEqual(t, before.ExpiresAt, after.ExpiresAt)
	})

	t.Run("stale cache is ignored", func(t *testing.T) {
		f := setupTestFixture(t)
		f.populate(t)
		cached, _, err := f.repo.Get(store.KeyClaims)
		require.NoError(t, err)

		resp := f.tokenResponse()
		newToken := tokentest.IDToken(t, testNow.Add(time.Minute), 2*time.Hour)
		resp.IdToken = utils.Ptr(newToken)
		f.data.UpdateAuthState(resp, testNow)
		f.repo.Set(store.KeyClaims, cached)

		reread := sessiondata.New(f.repo)
		require.NoError(t, reread.ReadFromDurableStore())
		require.Equal(t, testNow.Add(time.Minute+2*time.Hour).Unix(), reread.Claims().ExpiresAt.Unix())
	})

	t.Run("undecodable id token gives no claims", func(t *testing.T) {
		f := setupTestFixture(t)
		resp := f.tokenResponse()
		resp.IdToken = utils.Ptr("garbage")
		f.data.UpdateAuthState(resp, testNow)
		require.Nil(t, f.data.Claims())
	})
}

func TestResetSession(t *testing.T) {
	f := setupTestFixture(t)
	f.populate(t)
	f.data.SetPostAuthTarget("app://after-login")

	f.data.ResetSession()

	as := f.data.AuthState()
	require.Equal(t, testDiscovery(), as.Discovery)
	require.False(t, as.IsAuthorized())
	require.Nil(t, f.data.Claims())
	require.NotNil(t, f.data.IdentityProvider())
	require.Equal(t, testDiscovery().EndSessionEndpoint, f.data.LogoutEndpoint())
	require.Empty(t, f.data.PostAuthTarget())
	require.Equal(t, "app://after-logout", f.data.PostLogoutTarget())

	reread := sessiondata.New(f.repo)
	require.NoError(t, reread.ReadFromDurableStore())
	require.NotNil(t, reread.AuthState().Discovery)
	require.NotNil(t, reread.IdentityProvider())
	require.False(t, reread.AuthState().IsAuthorized())
}

type countingRegistration struct {
	unregistered atomic.Int32
}

func (c *countingRegistration) Unregister() {
	c.unregistered.Add(1)
}

func TestResetAllData(t *testing.T) {
	f := setupTestFixture(t)
	f.populate(t)
	reg := &countingRegistration{}
	f.data.AddListener("h1", sessions.NopListener{}, reg)
	f.data.RegisterEvent("h1", sessions.NopListener{}, events.LoginComplete)

	f.data.ResetAllData()

	require.Nil(t, f.data.AuthState().Discovery)
	require.Nil(t, f.data.IdentityProvider())
	require.Empty(t, f.data.LogoutEndpoint())
	require.Empty(t, f.data.PostLogoutTarget())
	require.True(t, f.data.NetworkAvailable())
	require.Empty(t, f.data.Listeners())
	require.Empty(t, f.data.Notifiers())
	require.Equal(t, int32(1), reg.unregistered.Load())

	all, err := f.repo.GetAll()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestDiskReset(t *testing.T) {
	f := setupTestFixture(t)
	f.populate(t)
	require.NoError(t, sessiondata.DiskReset(f.repo))
	all, err := f.repo.GetAll()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestFlags(t *testing.T) {
	f := setupTestFixture(t)

	require.False(t, f.data.CompareAndClearInitOngoing())
	f.data.SetInitOngoing(true)
	require.True(t, f.data.CompareAndClearInitOngoing())
	require.False(t, f.data.InitOngoing())

	require.True(t, f.data.SwapNetworkAvailable(false))
	require.False(t, f.data.SwapNetworkAvailable(false))
	require.False(t, f.data.SwapNetworkAvailable(true))
	v, _, err := f.repo.Get(store.KeyNetworkAvailable)
	require.NoError(t, err)
	require.Equal(t, "true", v)
}

func TestConditionalUpdate(t *testing.T) {
	f := setupTestFixture(t)
	f.populate(t)

	refreshed := &oauth2.TokenResponse{AccessToken: utils.Ptr("at-2"), RefreshToken: utils.Ptr("rt-2")}
	require.False(t, f.data.UpdateAuthStateIfRefreshTokenUnchanged("rt-other", refreshed, testNow))
	require.Equal(t, "at-1", utils.Value(f.data.AuthState().AccessToken()))

	require.True(t, f.data.UpdateAuthStateIfRefreshTokenUnchanged("rt-1", refreshed, testNow))
	require.Equal(t, "at-2", utils.Value(f.data.AuthState().AccessToken()))

	f.data.ResetSession()
	require.False(t, f.data.UpdateAuthStateIfRefreshTokenUnchanged("rt-2", refreshed, testNow))
}

func TestRefreshIsSingleFlight(t *testing.T) {
	f := setupTestFixture(t)

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.data.Refresh("rt-1", func() error {
				calls.Add(1)
				once.Do(func() { close(started) })
				<-release
				return nil
			})
			require.NoError(t, err)
		}()
	}
	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	require.Equal(t, int32(1), calls.Load())
}

func TestSetAuthState(t *testing.T) {
	f := setupTestFixture(t)
	as := authstate.New(testDiscovery())
	as.Update(f.tokenResponse(), testNow)
	f.data.SetAuthState(as)
	require.Equal(t, tokentest.Subject, f.data.Claims().Subject)

	f.data.SetAuthState(nil)
	require.Nil(t, f.data.AuthState().Discovery)
}

func TestConditionalReset(t *testing.T) {
	f := setupTestFixture(t)
	f.populate(t)
	require.False(t, f.data.ResetSessionIfRefreshTokenUnchanged("rt-other"))
	require.True(t, f.data.AuthState().IsAuthorized())

	require.True(t, f.data.ResetSessionIfRefreshTokenUnchanged("rt-1"))
	require.False(t, f.data.AuthState().IsAuthorized())
	require.NotNil(t, f.data.AuthState().Discovery)
	require.Nil(t, f.data.Claims())
}

func TestSnapshot(t *testing.T) {
	f := setupTestFixture(t)
	f.populate(t)

	as, claims := f.data.Snapshot()
	require.Equal(t, "at-1", utils.Value(as.AccessToken()))
	require.NotNil(t, claims)
	require.Equal(t, tokentest.Subject, claims.Subject)

	t.Run("follows a new id token", func(t *testing.T) {
		later := testNow.Add(time.Hour)
		resp := f.tokenResponse()
		resp.AccessToken = utils.Ptr("at-2")
		resp.IdToken = utils.Ptr(tokentest.IDToken(t, later, time.Hour))
		f.data.UpdateAuthState(resp, later)

		as, claims := f.data.Snapshot()
		require.Equal(t, "at-2", utils.Value(as.AccessToken()))
		require.Equal(t, later.Unix(), claims.IssuedAt.Unix())
	})

	t.Run("returns a copy of the auth state", func(t *testing.T) {
		as, _ := f.data.Snapshot()
		as.Scope = "changed"
		require.NotEqual(t, "changed", f.data.AuthState().Scope)
	})
}

func TestNetworkDefaultIsConsistent(t *testing.T) {
	f := setupTestFixture(t)
	require.True(t, f.data.NetworkAvailable())

	require.NoError(t, f.data.ReadFromDurableStore())
	require.True(t, f.data.NetworkAvailable())

	f.data.SetNetworkAvailable(false)
	f.data.ResetAllData()
	require.True(t, f.data.NetworkAvailable())
	require.True(t, f.data.SwapNetworkAvailable(true), "online after a reset is not a transition")
	require.True(t, f.data.SwapNetworkAvailable(false))
	require.False(t, f.data.NetworkAvailable())
}

func TestPersistFailuresAreLogged(t *testing.T) {
	logs := &bytes.Buffer{}
	repo := repofake.NewFakeStoreRepo(t.Name())
	data := sessiondata.New(repo, sessiondata.WithLogger(zerolog.New(logs)))
	repo.FailWrites(errors.New("disk full"))

	data.SetPostAuthTarget("app://home")
	require.Contains(t, logs.String(), "failed to persist session data")
	require.Contains(t, logs.String(), "disk full")

	logs.Reset()
	require.Error(t, data.WriteToDurableStore())
	require.Contains(t, logs.String(), "failed to persist session data")

	repo.FailWrites(nil)
	logs.Reset()
	require.NoError(t, data.WriteToDurableStore())
	require.NotContains(t, logs.String(), "failed to persist")
}
