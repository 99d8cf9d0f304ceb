package idp_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-sso-client/idp"
	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/stretchr/testify/require"
)

const (
	testDiscovery      = "https://idp.example.com/.well-known/openid-configuration"
	testClientID       = "client-1"
	testClientSecret   = "secret-1"
	testRedirectURI    = "http://127.0.0.1:8765/callback"
	testLogoutRedirect = "http://127.0.0.1:8765/logout"
	testScope          = "openid profile offline_access"
)

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		p, err := idp.New(testDiscovery, testClientID, testClientSecret, testRedirectURI, testLogoutRedirect, testScope)
		require.NoError(t, err)
		require.Equal(t, testClientID, p.ClientID())
		require.Equal(t, []string{"openid", "profile", "offline_access"}, p.Scopes())
		require.True(t, p.HasScope("openid"))
		require.False(t, p.HasScope("email"))
	})

	t.Run("empty field", func(t *testing.T) {
		_, err := idp.New(testDiscovery, "", testClientSecret, testRedirectURI, testLogoutRedirect, testScope)
		require.ErrorIs(t, err, internalerrors.ErrFieldNotSpecified)
		require.Contains(t, err.Error(), "clientId")
	})

	t.Run("relative uri", func(t *testing.T) {
		_, err := idp.New("/openid-configuration", testClientID, testClientSecret, testRedirectURI, testLogoutRedirect, testScope)
		require.ErrorIs(t, err, internalerrors.ErrInvalidURI)
	})
}

func TestJSONRoundTrip(t *testing.T) {
	p, err := idp.New(testDiscovery, testClientID, testClientSecret, testRedirectURI, testLogoutRedirect, testScope)
	require.NoError(t, err)

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded idp.IdentityProvider
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, p.Registration(), decoded.Registration())

	require.Error(t, json.Unmarshal([]byte(`{"clientId":"x"}`), &decoded))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "idp.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
discovery_endpoint: `+testDiscovery+`
client_id: `+testClientID+`
client_secret: `+testClientSecret+`
redirect_uri: `+testRedirectURI+`
logout_redirect_uri: `+testLogoutRedirect+`
scope: `+testScope+`
`), 0o600))

		p, err := idp.LoadFile(path)
		require.NoError(t, err)
		require.Equal(t, testDiscovery, p.DiscoveryEndpoint())
		require.Equal(t, testLogoutRedirect, p.LogoutRedirectURI())
	})

	t.Run("unknown field", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("client_id: x\ntenant: y\n"), 0o600))
		_, err := idp.LoadFile(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := idp.LoadFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})
}
