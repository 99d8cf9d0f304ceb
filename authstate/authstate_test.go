package authstate_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-sso-client/authstate"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/stretchr/testify/require"
)

const tolerance = 60 * time.Second

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testDiscovery() *oauth2.DiscoveryMetadata {
	return &oauth2.DiscoveryMetadata{
		Issuer:                "https://idp.example.com",
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		TokenEndpoint:         "https://idp.example.com/token",
		EndSessionEndpoint:    "https://idp.example.com/logout",
	}
}

func tokenResponse() *oauth2.TokenResponse {
	return &oauth2.TokenResponse{
		AccessToken:  utils.Ptr("at-1"),
		IdToken:      utils.Ptr("id-1"),
		RefreshToken: utils.Ptr("rt-1"),
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		Scope:        "openid profile",
	}
}

func TestIsAuthorized(t *testing.T) {
	as := authstate.New(testDiscovery())
	require.False(t, as.IsAuthorized())

	as.Update(&oauth2.TokenResponse{IdToken: utils.Ptr("id-only")}, testNow)
	require.True(t, as.IsAuthorized())

	as = authstate.New(nil)
	as.Update(&oauth2.TokenResponse{AccessToken: utils.Ptr("at-only")}, testNow)
	require.True(t, as.IsAuthorized())
}

func TestNeedsTokenRefresh(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		require.True(t, authstate.New(nil).NeedsTokenRefresh(testNow, tolerance))
	})

	t.Run("fresh", func(t *testing.T) {
		as := authstate.New(testDiscovery())
		as.Update(tokenResponse(), testNow)
		require.False(t, as.NeedsTokenRefresh(testNow, tolerance))
	})

	t.Run("within tolerance of expiry", func(t *testing.T) {
		as := authstate.New(testDiscovery())
		as.Update(tokenResponse(), testNow)
		require.True(t, as.NeedsTokenRefresh(testNow.Add(time.Hour-tolerance), tolerance))
		require.False(t, as.NeedsTokenRefresh(testNow.Add(time.Hour-tolerance-time.Second), tolerance))
	})

	t.Run("no expiry with access token", func(t *testing.T) {
		as := authstate.New(testDiscovery())
		as.Update(&oauth2.TokenResponse{AccessToken: utils.Ptr("at")}, testNow)
		require.False(t, as.NeedsTokenRefresh(testNow.Add(24*time.Hour), tolerance))
	})

	t.Run("override", func(t *testing.T) {
		as := authstate.New(testDiscovery())
		as.Update(tokenResponse(), testNow)
		as.NeedsRefreshOverride = true
		require.True(t, as.NeedsTokenRefresh(testNow, tolerance))
	})
}

func TestUpdate(t *testing.T) {
	as := authstate.New(testDiscovery())
	as.PendingAuthorization = &oauthmodel.AuthorizationRequest{State: "s"}
	as.Update(tokenResponse(), testNow)
	require.Nil(t, as.PendingAuthorization)
	require.Equal(t, "rt-1", *as.RefreshToken())

	as.Update(&oauth2.TokenResponse{AccessToken: utils.Ptr("at-2"), ExpiresIn: 60}, testNow)
	require.Equal(t, "at-2", *as.AccessToken())
	require.Equal(t, "rt-1", *as.RefreshToken())
	require.Equal(t, "id-1", *as.IDToken())
	require.Equal(t, "openid profile", as.Scope)

	as.Update(&oauth2.TokenResponse{AccessToken: utils.Ptr("at-3"), RefreshToken: utils.Ptr("rt-2")}, testNow)
	require.Equal(t, "rt-2", *as.RefreshToken())
	require.Nil(t, as.AccessTokenExpiresAt)
}

func TestResetKeepsDiscovery(t *testing.T) {
	as := authstate.New(testDiscovery())
	as.Update(tokenResponse(), testNow)

	reset := as.Reset()
	require.Equal(t, as.Discovery, reset.Discovery)
	require.False(t, reset.IsAuthorized())
	require.Nil(t, reset.RefreshToken())
}

func TestJSONRoundTrip(t *testing.T) {
	as := authstate.New(testDiscovery())
	as.Update(tokenResponse(), testNow)
	as.PendingAuthorization = &oauthmodel.AuthorizationRequest{State: "s", Nonce: "n", AdditionalParameters: map[string]string{"b": "2", "a": "1"}}

	first, err := as.ToJSON()
	require.NoError(t, err)

	decoded, err := authstate.FromJSON(first)
	require.NoError(t, err)
	require.Equal(t, as, decoded)

	second, err := decoded.ToJSON()
	require.NoError(t, err)
	require.Equal(t, first, second)

	_, err = authstate.FromJSON("{not json")
	require.Error(t, err)
}

func TestClone(t *testing.T) {
	as := authstate.New(testDiscovery())
	as.Update(tokenResponse(), testNow)

	clone := as.Clone()
	require.Equal(t, as, clone)
	*clone.LastTokenResponse.AccessToken = "changed"
	require.Equal(t, "at-1", *as.AccessToken())

	var nilState *authstate.AuthState
	require.Nil(t, nilState.Clone())
}
