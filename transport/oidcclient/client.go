// Package oidcclient implements the OAuth transport with golang.org/x/oauth2 and go-oidc.
package oidcclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/jrsteele09/go-sso-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
)

const maxDiscoveryDocumentSize = 1 << 20

// Opener shows an authorization URL to the user, typically by launching a browser.
type Opener func(ctx context.Context, authorizationURL string) error

// Client is a transport.Transport backed by x/oauth2.
type Client struct {
	httpClient     *http.Client
	opener         Opener
	verifyIDTokens bool
	timeout        time.Duration
	nowFunc        func() time.Time
	logger         zerolog.Logger
}

var _ transport.Transport = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithOpener(opener Opener) Option {
	return func(c *Client) {
		c.opener = opener
	}
}

// WithIDTokenVerification verifies the signature of ID tokens returned by the code exchange
// against the provider's JWKS.
func WithIDTokenVerification(verify bool) Option {
	return func(c *Client) {
		c.verifyIDTokens = verify
	}
}

// WithTimeout bounds every network call. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(options ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		timeout:    30 * time.Second,
		nowFunc:    time.Now,
		logger:     log.With().Str("component", "oidcclient").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// FetchDiscovery downloads and parses the discovery document at discoveryURI.
func (c *Client) FetchDiscovery(ctx context.Context, discoveryURI string) (*oauth2.DiscoveryMetadata, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURI, nil)
	if err != nil {
		return nil, transport.NewError(transport.CategoryGeneral, transport.CodeInvalidResponse, "bad discovery uri", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(transport.CategoryGeneral, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryDocumentSize))
	if err != nil {
		return nil, classifyError(transport.CategoryGeneral, err)
	}
	if resp.StatusCode != http.StatusOK {
		code := transport.CodeInvalidResponse
		if resp.StatusCode >= http.StatusInternalServerError {
			code = transport.CodeServerError
		}
		return nil, transport.NewError(transport.CategoryGeneral, code, fmt.Sprintf("discovery returned %d", resp.StatusCode), nil)
	}

	md, err := oauth2.ParseDiscovery(body)
	if err != nil {
		return nil, transport.NewError(transport.CategoryGeneral, transport.CodeInvalidResponse, "malformed discovery document", err)
	}
	c.logger.Debug().Str("issuer", md.Issuer).Bool("endSession", md.EndSessionEndpoint != "").Msg("fetched discovery document")
	return md, nil
}

func (c *Client) config(req *oauthmodel.TokenRequest, auth oauthmodel.ClientAuth) *xoauth2.Config {
	return &xoauth2.Config{
		ClientID:     auth.ClientID,
		ClientSecret: auth.ClientSecret,
		RedirectURL:  req.RedirectURI,
		Endpoint: xoauth2.Endpoint{
			AuthURL:   req.AuthorizationEndpoint,
			TokenURL:  req.TokenEndpoint,
			AuthStyle: xoauth2.AuthStyleInHeader,
		},
	}
}

// ExchangeCode redeems an authorization code, sending the PKCE verifier when one was generated.
func (c *Client) ExchangeCode(ctx context.Context, req *oauthmodel.TokenRequest, auth oauthmodel.ClientAuth) (*oauth2.TokenResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	ctx = context.WithValue(ctx, xoauth2.HTTPClient, c.httpClient)

	var opts []xoauth2.AuthCodeOption
	if req.CodeVerifier != "" {
		opts = append(opts, xoauth2.VerifierOption(req.CodeVerifier))
	}
	tok, err := c.config(req, auth).Exchange(ctx, req.Code, opts...)
	if err != nil {
		c.logger.Warn().Err(err).Msg("code exchange failed")
		return nil, classifyError(transport.CategoryToken, err)
	}

	resp := toTokenResponse(tok)
	if c.verifyIDTokens && resp.IdToken != nil {
		if err := c.verifyIDToken(ctx, req, auth, *resp.IdToken); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// RefreshToken redeems a refresh token. A response without a new refresh token keeps the old one.
func (c *Client) RefreshToken(ctx context.Context, req *oauthmodel.TokenRequest, auth oauthmodel.ClientAuth) (*oauth2.TokenResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	ctx = context.WithValue(ctx, xoauth2.HTTPClient, c.httpClient)

	tok, err := c.config(req, auth).TokenSource(ctx, &xoauth2.Token{RefreshToken: req.RefreshToken}).Token()
	if err != nil {
		c.logger.Warn().Err(err).Msg("token refresh failed")
		return nil, classifyError(transport.CategoryToken, err)
	}
	return toTokenResponse(tok), nil
}

func (c *Client) verifyIDToken(ctx context.Context, req *oauthmodel.TokenRequest, auth oauthmodel.ClientAuth, idToken string) error {
	if req.Issuer == "" || req.JWKSURI == "" {
		return transport.NewError(transport.CategoryToken, transport.CodeInvalidIDToken, "discovery has no jwks_uri", nil)
	}
	providerConfig := &oidc.ProviderConfig{
		IssuerURL:  req.Issuer,
		AuthURL:    req.AuthorizationEndpoint,
		TokenURL:   req.TokenEndpoint,
		JWKSURL:    req.JWKSURI,
		Algorithms: req.SigningAlgorithms,
	}
	verifier := providerConfig.NewProvider(oidc.ClientContext(ctx, c.httpClient)).Verifier(&oidc.Config{
		ClientID:             auth.ClientID,
		SupportedSigningAlgs: req.SigningAlgorithms,
		Now:                  c.nowFunc,
	})
	if _, err := verifier.Verify(ctx, idToken); err != nil {
		c.logger.Warn().Err(err).Msg("id token verification failed")
		return transport.NewError(transport.CategoryToken, transport.CodeInvalidIDToken, "id token verification failed", err)
	}
	return nil
}

// AuthorizationURL renders the authorization request as a URL on the authorization endpoint.
func (c *Client) AuthorizationURL(req *oauthmodel.AuthorizationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", errors.Wrap(err, "Client.AuthorizationURL Validate")
	}
	cfg := &xoauth2.Config{
		ClientID:    req.ClientID,
		RedirectURL: req.RedirectURI,
		Endpoint:    xoauth2.Endpoint{AuthURL: req.AuthorizationEndpoint},
	}
	if req.Scope != "" {
		cfg.Scopes = []string{req.Scope}
	}

	opts := []xoauth2.AuthCodeOption{xoauth2.SetAuthURLParam(oauth2.ParamNonce, req.Nonce)}
	if req.CodeVerifier != "" {
		opts = append(opts, xoauth2.S256ChallengeOption(req.CodeVerifier))
	}
	if req.Prompt != "" {
		opts = append(opts, xoauth2.SetAuthURLParam(oauth2.ParamPrompt, req.Prompt))
	}
	for _, name := range req.ExtraParameterNames() {
		opts = append(opts, xoauth2.SetAuthURLParam(name, req.AdditionalParameters[name]))
	}
	return cfg.AuthCodeURL(req.State, opts...), nil
}

// LaunchAuthorization renders the request and hands it to the opener.
func (c *Client) LaunchAuthorization(ctx context.Context, req *oauthmodel.AuthorizationRequest, resumeTarget string) error {
	authURL, err := c.AuthorizationURL(req)
	if err != nil {
		return transport.NewError(transport.CategoryAuthorization, transport.CodeInvalidResponse, "bad authorization request", err)
	}
	if c.opener == nil {
		return transport.NewError(transport.CategoryAuthorization, transport.CodeBrowserError, "no opener configured", nil)
	}
	if err := c.opener(ctx, authURL); err != nil {
		return transport.NewError(transport.CategoryAuthorization, transport.CodeBrowserError, "failed to open authorization url", err)
	}
	c.logger.Info().Bool("pkce", req.CodeVerifier != "").Str("resumeTarget", resumeTarget).Msg("launched authorization request")
	return nil
}

func toTokenResponse(tok *xoauth2.Token) *oauth2.TokenResponse {
	resp := &oauth2.TokenResponse{
		AccessToken:  utils.PtrOrNil(tok.AccessToken),
		RefreshToken: utils.PtrOrNil(tok.RefreshToken),
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		resp.Expiry = &expiry
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		resp.IdToken = utils.PtrOrNil(idToken)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}

// classifyError maps transport failures onto error codes. OAuth error responses keep their
// own code; a bare 5xx is a server error; anything that never reached the server is a
// network error.
func classifyError(category transport.Category, err error) *transport.Error {
	var retrieveErr *xoauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.ErrorCode
		if code == "" && retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			code = transport.CodeServerError
		}
		if code == "" {
			code = transport.CodeInvalidResponse
		}
		return transport.NewError(category, code, retrieveErr.ErrorDescription, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return transport.NewError(transport.CategoryGeneral, transport.CodeNetworkError, "", err)
	}
	return transport.NewError(transport.CategoryGeneral, transport.CodeInvalidResponse, "", err)
}
