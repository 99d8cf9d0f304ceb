package oauthmodel

import (
	"net/url"
	"sort"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-sso-client/oauth2"
	xoauth2 "golang.org/x/oauth2"
)

// AuthorizationRequest holds parameters for the OAuth2 authorization request the client launches.
// It is persisted with the auth state until the redirect comes back, so the code exchange can
// complete in a later process.
type AuthorizationRequest struct {
	// AuthorizationEndpoint is the provider's authorization endpoint from discovery.
	AuthorizationEndpoint string `json:"authorizationEndpoint"`

	// ClientID identifies the application requesting authorization.
	ClientID string `json:"clientId"`

	// ResponseType is always "code".
	ResponseType oauth2.ResponseType `json:"responseType"`

	// RedirectURI is where the authorization response will be sent.
	// Security: Must match the registered redirect URI exactly
	RedirectURI string `json:"redirectUri"`

	// Scope specifies the permissions being requested.
	// Example: "openid profile offline_access"
	Scope string `json:"scope"`

	// State is an opaque value echoed back on the redirect.
	// Security: The redirect is rejected unless it matches
	State string `json:"state"`

	// Nonce binds the ID token to this request.
	Nonce string `json:"nonce"`

	// CodeVerifier is the PKCE secret. Only the challenge derived from it leaves the client.
	CodeVerifier string `json:"codeVerifier,omitempty"`

	// CodeChallengeMethod specifies how code_challenge was derived.
	CodeChallengeMethod oauth2.CodeMethodType `json:"codeChallengeMethod,omitempty"`

	// Prompt is the reserved "prompt" parameter, split out of the caller supplied parameters.
	// Example: "login" or "consent"
	Prompt string `json:"prompt,omitempty"`

	// AdditionalParameters are sent verbatim on the authorization URL.
	AdditionalParameters map[string]string `json:"additionalParameters,omitempty"`
}

// SplitPrompt separates the reserved prompt parameter from the other extra parameters.
// The input map is not modified.
func SplitPrompt(params map[string]string) (string, map[string]string) {
	var prompt string
	extras := make(map[string]string, len(params))
	for k, v := range params {
		if k == oauth2.ParamPrompt {
			prompt = v
			continue
		}
		extras[k] = v
	}
	if len(extras) == 0 {
		extras = nil
	}
	return prompt, extras
}

// NewAuthorizationRequest creates a code flow request with fresh state, nonce and PKCE verifier.
func NewAuthorizationRequest(discovery *oauth2.DiscoveryMetadata, clientID, redirectURI, scope string, params map[string]string, pkce bool) *AuthorizationRequest {
	prompt, extras := SplitPrompt(params)
	req := &AuthorizationRequest{
		AuthorizationEndpoint: discovery.AuthorizationEndpoint,
		ClientID:              clientID,
		ResponseType:          oauth2.CodeResponseType,
		RedirectURI:           redirectURI,
		Scope:                 scope,
		State:                 uuid.NewString(),
		Nonce:                 uuid.NewString(),
		Prompt:                prompt,
		AdditionalParameters:  extras,
	}
	if pkce {
		req.CodeVerifier = xoauth2.GenerateVerifier()
		req.CodeChallengeMethod = oauth2.CodeMethodTypeS256
	}
	return req
}

// ExtraParameterNames returns the additional parameter names in a stable order.
func (r *AuthorizationRequest) ExtraParameterNames() []string {
	names := make([]string, 0, len(r.AdditionalParameters))
	for k := range r.AdditionalParameters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// AuthorizationResponse holds the parameters of the redirect back from the authorization endpoint.
type AuthorizationResponse struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseAuthorizationResponse reads the redirect query parameters.
func ParseAuthorizationResponse(query url.Values) AuthorizationResponse {
	return AuthorizationResponse{
		Code:             query.Get(oauth2.ParamCode),
		State:            query.Get(oauth2.ParamState),
		Error:            query.Get(oauth2.ParamError),
		ErrorDescription: query.Get(oauth2.ParamErrorDescription),
	}
}

// IsError reports whether the provider returned an error instead of a code.
func (r AuthorizationResponse) IsError() bool {
	return r.Error != ""
}

// Validate checks that the request can be turned into an authorization URL.
func (r *AuthorizationRequest) Validate() error {
	if r.ResponseType != "" && r.ResponseType != oauth2.CodeResponseType {
		return ErrInvalidResponseType
	}
	if r.RedirectURI == "" {
		return ErrInvalidRedirectUri
	}
	if r.AuthorizationEndpoint == "" {
		return ErrMissingAuthorizationEndpoint
	}
	switch r.CodeChallengeMethod {
	case "", oauth2.CodeMethodTypeS256:
	default:
		return ErrInvalidCodeChallengeMethod
	}
	return nil
}
