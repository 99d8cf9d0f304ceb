package oauthmodel

import "github.com/jrsteele09/go-sso-client/oauth2"

// TokenRequest holds parameters for an OAuth2 token request sent by the client.
// Supports the grant types the session manager drives: authorization_code and refresh_token.
type TokenRequest struct {
	// TokenEndpoint is the provider's token endpoint taken from the discovery metadata.
	// Required: Yes
	TokenEndpoint string

	// AuthorizationEndpoint is carried so transports that build a full oauth2 config have it.
	AuthorizationEndpoint string

	// Issuer, JWKSURI and SigningAlgorithms let a transport verify the returned ID token.
	Issuer            string
	JWKSURI           string
	SigningAlgorithms []string

	// GrantType selects the token endpoint grant.
	// Required: Yes
	GrantType oauth2.GrantType

	// Code is the authorization code received on the redirect.
	// Required: Yes (only for authorization_code grant)
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// CodeVerifier is the PKCE code verifier that matches the code_challenge sent earlier.
	// Required: Yes (if PKCE was used in authorization request)
	CodeVerifier string

	// RedirectURI must equal the redirect_uri of the authorization request.
	// Required: Yes (only for authorization_code grant)
	RedirectURI string

	// RefreshToken is used to obtain new tokens without re-authentication.
	// Required: Yes (only for refresh_token grant)
	// Behavior: May be rotated by the provider
	RefreshToken string

	// Scope optionally narrows the scope on refresh.
	Scope string
}

// ClientAuth holds the client credentials sent with client_secret_basic.
type ClientAuth struct {
	ClientID     string
	ClientSecret string
}

// NewRefreshRequest builds a refresh_token grant request.
func NewRefreshRequest(discovery *oauth2.DiscoveryMetadata, refreshToken string) *TokenRequest {
	return &TokenRequest{
		TokenEndpoint:         discovery.TokenEndpoint,
		AuthorizationEndpoint: discovery.AuthorizationEndpoint,
		Issuer:                discovery.Issuer,
		JWKSURI:               discovery.JWKSURI,
		SigningAlgorithms:     discovery.SigningAlgorithms,
		GrantType:             oauth2.RefreshTokenCodeGrant,
		RefreshToken:          refreshToken,
	}
}

// NewCodeExchangeRequest builds an authorization_code grant request for a pending authorization.
func NewCodeExchangeRequest(discovery *oauth2.DiscoveryMetadata, pending *AuthorizationRequest, code string) *TokenRequest {
	return &TokenRequest{
		TokenEndpoint:         discovery.TokenEndpoint,
		AuthorizationEndpoint: discovery.AuthorizationEndpoint,
		Issuer:                discovery.Issuer,
		JWKSURI:               discovery.JWKSURI,
		SigningAlgorithms:     discovery.SigningAlgorithms,
		GrantType:             oauth2.AuthorizationCodeGrant,
		Code:                  code,
		CodeVerifier:          pending.CodeVerifier,
		RedirectURI:           pending.RedirectURI,
	}
}
