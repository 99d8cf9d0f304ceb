package oidcclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/jrsteele09/go-sso-client/token/tokentest"
	"github.com/jrsteele09/go-sso-client/transport"
	"github.com/jrsteele09/go-sso-client/transport/oidcclient"
	"github.com/stretchr/testify/require"
)

var testNow = time.Now().Truncate(time.Second)

type fakeProvider struct {
	t      *testing.T
	server *httptest.Server
	key    *tokentest.RSAKey

	lock          sync.Mutex
	tokenForms    []url.Values
	tokenStatus   int
	tokenBody     map[string]any
	discoveryCode int
}

type testFixture struct {
	provider *fakeProvider
	client   *oidcclient.Client
	opened   []string
}

func setupTestFixture(t *testing.T, options ...oidcclient.Option) *testFixture {
	t.Helper()
	p := &fakeProvider{t: t, key: tokentest.NewRSAKey(t, "k1"), tokenStatus: http.StatusOK, discoveryCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("/token", p.token)
	mux.HandleFunc("/jwks", p.jwks)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)

	f := &testFixture{provider: p}
	options = append([]oidcclient.Option{
		oidcclient.WithHTTPClient(p.server.Client()),
		oidcclient.WithOpener(func(_ context.Context, u string) error {
			f.opened = append(f.opened, u)
			return nil
		}),
	}, options...)
	f.client = oidcclient.New(options...)
	return f
}

func (p *fakeProvider) discovery(w http.ResponseWriter, _ *http.Request) {
	if p.discoveryCode != http.StatusOK {
		w.WriteHeader(p.discoveryCode)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                p.server.URL,
		"authorization_endpoint":                p.server.URL + "/authorize",
		"token_endpoint":                        p.server.URL + "/token",
		"end_session_endpoint":                  p.server.URL + "/logout",
		"jwks_uri":                              p.server.URL + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(p.t, r.ParseForm())
	p.lock.Lock()
	p.tokenForms = append(p.tokenForms, r.PostForm)
	status, body := p.tokenStatus, p.tokenBody
	p.lock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (p *fakeProvider) jwks(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(p.key.JWKS())
}

func (p *fakeProvider) signedIDToken(t *testing.T) string {
	claims := tokentest.Claims(testNow, time.Hour)
	claims["iss"] = p.server.URL
	return p.key.Sign(t, claims)
}

func (f *testFixture) discovery(t *testing.T) *oauth2.DiscoveryMetadata {
	t.Helper()
	md, err := f.client.FetchDiscovery(context.Background(), f.provider.server.URL+"/.well-known/openid-configuration")
	require.NoError(t, err)
	return md
}

func requireTransportError(t *testing.T, err error, category transport.Category, code string) {
	t.Helper()
	var terr *transport.Error
	require.True(t, errors.As(err, &terr), "expected transport error, got %v", err)
	require.Equal(t, category, terr.Category)
	require.Equal(t, code, terr.Code)
}

func TestFetchDiscovery(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := setupTestFixture(t)
		md := f.discovery(t)
		require.Equal(t, f.provider.server.URL, md.Issuer)
		require.Equal(t, f.provider.server.URL+"/logout", md.EndSessionEndpoint)
		require.Equal(t, f.provider.server.URL+"/jwks", md.JWKSURI)
	})

	t.Run("server error", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.discoveryCode = http.StatusServiceUnavailable
		_, err := f.client.FetchDiscovery(context.Background(), f.provider.server.URL+"/.well-known/openid-configuration")
		requireTransportError(t, err, transport.CategoryGeneral, transport.CodeServerError)
	})

	t.Run("not found", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.client.FetchDiscovery(context.Background(), f.provider.server.URL+"/missing")
		requireTransportError(t, err, transport.CategoryGeneral, transport.CodeInvalidResponse)
	})

	t.Run("unreachable", func(t *testing.T) {
		f := setupTestFixture(t)
		unreachable := f.provider.server.URL
		f.provider.server.Close()
		_, err := f.client.FetchDiscovery(context.Background(), unreachable+"/.well-known/openid-configuration")
		requireTransportError(t, err, transport.CategoryGeneral, transport.CodeNetworkError)
	})
}

func TestExchangeCode(t *testing.T) {
	auth := oauthmodel.ClientAuth{ClientID: tokentest.Audience, ClientSecret: "secret"}

	t.Run("success with pkce", func(t *testing.T) {
		f := setupTestFixture(t)
		md := f.discovery(t)
		pending := oauthmodel.NewAuthorizationRequest(md, auth.ClientID, "http://127.0.0.1/cb", "openid", nil, true)
		idToken := tokentest.IDToken(t, testNow, time.Hour)
		f.provider.tokenBody = map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"id_token":      idToken,
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "openid",
		}

		resp, err := f.client.ExchangeCode(context.Background(), oauthmodel.NewCodeExchangeRequest(md, pending, "code-1"), auth)
		require.NoError(t, err)
		require.Equal(t, "at-1", utils.Value(resp.AccessToken))
		require.Equal(t, "rt-1", utils.Value(resp.RefreshToken))
		require.Equal(t, idToken, utils.Value(resp.IdToken))
		require.Equal(t, "openid", resp.Scope)
		require.NotNil(t, resp.Expiry)

		form := f.provider.tokenForms[0]
		require.Equal(t, "authorization_code", form.Get("grant_type"))
		require.Equal(t, "code-1", form.Get("code"))
		require.Equal(t, pending.CodeVerifier, form.Get("code_verifier"))
		require.Equal(t, "http://127.0.0.1/cb", form.Get("redirect_uri"))
	})

	t.Run("oauth error keeps its code", func(t *testing.T) {
		f := setupTestFixture(t)
		md := f.discovery(t)
		pending := oauthmodel.NewAuthorizationRequest(md, auth.ClientID, "http://127.0.0.1/cb", "openid", nil, false)
		f.provider.tokenStatus = http.StatusBadRequest
		f.provider.tokenBody = map[string]any{"error": "invalid_grant", "error_description": "code used"}

		_, err := f.client.ExchangeCode(context.Background(), oauthmodel.NewCodeExchangeRequest(md, pending, "code-1"), auth)
		requireTransportError(t, err, transport.CategoryToken, transport.CodeInvalidGrant)
		require.Empty(t, f.provider.tokenForms[0].Get("code_verifier"))
	})

	t.Run("verified id token", func(t *testing.T) {
		f := setupTestFixture(t, oidcclient.WithIDTokenVerification(true))
		md := f.discovery(t)
		pending := oauthmodel.NewAuthorizationRequest(md, auth.ClientID, "http://127.0.0.1/cb", "openid", nil, true)
		f.provider.tokenBody = map[string]any{
			"access_token": "at-1",
			"id_token":     f.provider.signedIDToken(t),
			"token_type":   "Bearer",
		}
		_, err := f.client.ExchangeCode(context.Background(), oauthmodel.NewCodeExchangeRequest(md, pending, "code-1"), auth)
		require.NoError(t, err)
	})

	t.Run("unverifiable id token", func(t *testing.T) {
		f := setupTestFixture(t, oidcclient.WithIDTokenVerification(true))
		md := f.discovery(t)
		pending := oauthmodel.NewAuthorizationRequest(md, auth.ClientID, "http://127.0.0.1/cb", "openid", nil, true)
		f.provider.tokenBody = map[string]any{
			"access_token": "at-1",
			"id_token":     tokentest.IDToken(t, testNow, time.Hour),
			"token_type":   "Bearer",
		}
		_, err := f.client.ExchangeCode(context.Background(), oauthmodel.NewCodeExchangeRequest(md, pending, "code-1"), auth)
		requireTransportError(t, err, transport.CategoryToken, transport.CodeInvalidIDToken)
	})
}

func TestRefreshToken(t *testing.T) {
	auth := oauthmodel.ClientAuth{ClientID: tokentest.Audience, ClientSecret: "secret"}

	t.Run("success", func(t *testing.T) {
		f := setupTestFixture(t)
		md := f.discovery(t)
		f.provider.tokenBody = map[string]any{"access_token": "at-2", "token_type": "Bearer", "expires_in": 60}

		resp, err := f.client.RefreshToken(context.Background(), oauthmodel.NewRefreshRequest(md, "rt-1"), auth)
		require.NoError(t, err)
		require.Equal(t, "at-2", utils.Value(resp.AccessToken))
		require.Nil(t, resp.IdToken)

		form := f.provider.tokenForms[0]
		require.Equal(t, "refresh_token", form.Get("grant_type"))
		require.Equal(t, "rt-1", form.Get("refresh_token"))
	})

	t.Run("bare server error", func(t *testing.T) {
		f := setupTestFixture(t)
		md := f.discovery(t)
		f.provider.tokenStatus = http.StatusBadGateway

		_, err := f.client.RefreshToken(context.Background(), oauthmodel.NewRefreshRequest(md, "rt-1"), auth)
		requireTransportError(t, err, transport.CategoryToken, transport.CodeServerError)
	})

	t.Run("unreachable", func(t *testing.T) {
		f := setupTestFixture(t)
		md := f.discovery(t)
		f.provider.server.Close()

		_, err := f.client.RefreshToken(context.Background(), oauthmodel.NewRefreshRequest(md, "rt-1"), auth)
		requireTransportError(t, err, transport.CategoryGeneral, transport.CodeNetworkError)
	})
}

func TestAuthorization(t *testing.T) {
	t.Run("url carries the request", func(t *testing.T) {
		f := setupTestFixture(t)
		md := f.discovery(t)
		req := oauthmodel.NewAuthorizationRequest(md, "client-1", "http://127.0.0.1/cb", "openid offline_access",
			map[string]string{"prompt": "login", "ui_locales": "en"}, true)

		require.NoError(t, f.client.LaunchAuthorization(context.Background(), req, "app://home"))
		require.Len(t, f.opened, 1)

		u, err := url.Parse(f.opened[0])
		require.NoError(t, err)
		q := u.Query()
		require.Equal(t, md.AuthorizationEndpoint, u.Scheme+"://"+u.Host+u.Path)
		require.Equal(t, "code", q.Get("response_type"))
		require.Equal(t, "client-1", q.Get("client_id"))
		require.Equal(t, "http://127.0.0.1/cb", q.Get("redirect_uri"))
		require.Equal(t, "openid offline_access", q.Get("scope"))
		require.Equal(t, req.State, q.Get("state"))
		require.Equal(t, req.Nonce, q.Get("nonce"))
		require.Equal(t, "login", q.Get("prompt"))
		require.Equal(t, "en", q.Get("ui_locales"))
		require.Equal(t, "S256", q.Get("code_challenge_method"))
		require.NotEmpty(t, q.Get("code_challenge"))
	})

	t.Run("no pkce", func(t *testing.T) {
		f := setupTestFixture(t)
		req := oauthmodel.NewAuthorizationRequest(f.discovery(t), "client-1", "http://127.0.0.1/cb", "openid", nil, false)
		authURL, err := f.client.AuthorizationURL(req)
		require.NoError(t, err)
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		require.Empty(t, u.Query().Get("code_challenge"))
	})

	t.Run("no opener", func(t *testing.T) {
		f := setupTestFixture(t, oidcclient.WithOpener(nil))
		req := oauthmodel.NewAuthorizationRequest(f.discovery(t), "client-1", "http://127.0.0.1/cb", "openid", nil, true)
		err := f.client.LaunchAuthorization(context.Background(), req, "")
		requireTransportError(t, err, transport.CategoryAuthorization, transport.CodeBrowserError)
	})
}
