package authstate

import (
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/pkg/errors"
)

// AuthState is the authoritative record of tokens and discovery metadata for one session.
// It is not safe for concurrent use; the session store serializes access to it.
type AuthState struct {
	Discovery            *oauth2.DiscoveryMetadata        `json:"discovery,omitempty"`
	LastTokenResponse    *oauth2.TokenResponse            `json:"lastTokenResponse,omitempty"`
	PendingAuthorization *oauthmodel.AuthorizationRequest `json:"pendingAuthorization,omitempty"`

	RefreshTokenValue    *string    `json:"refreshToken,omitempty"`
	IDTokenValue         *string    `json:"idToken,omitempty"`
	Scope                string     `json:"scope,omitempty"`
	AccessTokenExpiresAt *time.Time `json:"accessTokenExpiresAt,omitempty"`

	// NeedsRefreshOverride forces the next freshness check to request a refresh.
	NeedsRefreshOverride bool `json:"needsRefresh,omitempty"`
}

// New creates an auth state bound to the given discovery metadata, which may be nil.
func New(discovery *oauth2.DiscoveryMetadata) *AuthState {
	return &AuthState{Discovery: discovery}
}

// IsAuthorized is true once an access token or ID token has been obtained, regardless of expiry.
func (a *AuthState) IsAuthorized() bool {
	return a.AccessToken() != nil || a.IDToken() != nil
}

func (a *AuthState) AccessToken() *string {
	if a.LastTokenResponse == nil {
		return nil
	}
	return a.LastTokenResponse.AccessToken
}

func (a *AuthState) IDToken() *string {
	return a.IDTokenValue
}

func (a *AuthState) RefreshToken() *string {
	return a.RefreshTokenValue
}

// NeedsTokenRefresh reports whether the access token must be refreshed before use.
// A token without a known expiry is considered fresh while it exists.
func (a *AuthState) NeedsTokenRefresh(now time.Time, tolerance time.Duration) bool {
	if a.NeedsRefreshOverride {
		return true
	}
	if a.AccessTokenExpiresAt == nil {
		return a.AccessToken() == nil
	}
	return !a.AccessTokenExpiresAt.After(now.Add(tolerance))
}

// Update applies a token response from a code exchange or a refresh.
// A response without a refresh token or ID token keeps the previous one.
func (a *AuthState) Update(resp *oauth2.TokenResponse, receivedAt time.Time) {
	a.LastTokenResponse = resp
	a.PendingAuthorization = nil
	a.NeedsRefreshOverride = false
	a.AccessTokenExpiresAt = resp.ExpiresAt(receivedAt)
	if resp.RefreshToken != nil {
		a.RefreshTokenValue = resp.RefreshToken
	}
	if resp.IdToken != nil {
		a.IDTokenValue = resp.IdToken
	}
	if resp.Scope != "" {
		a.Scope = resp.Scope
	}
}

// AttachDiscovery sets discovery metadata, keeping any tokens already held.
func (a *AuthState) AttachDiscovery(discovery *oauth2.DiscoveryMetadata) {
	a.Discovery = discovery
}

// Reset returns an empty auth state that keeps the discovery metadata.
func (a *AuthState) Reset() *AuthState {
	return New(a.Discovery)
}

// Clone returns a deep copy.
func (a *AuthState) Clone() *AuthState {
	if a == nil {
		return nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return &AuthState{Discovery: a.Discovery}
	}
	var clone AuthState
	if err := json.Unmarshal(b, &clone); err != nil {
		return &AuthState{Discovery: a.Discovery}
	}
	return &clone
}

// ToJSON serializes the auth state. Output is deterministic for equal states.
func (a *AuthState) ToJSON() (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", errors.Wrap(err, "AuthState.ToJSON Marshal")
	}
	return string(b), nil
}

// FromJSON parses a serialized auth state.
func FromJSON(s string) (*AuthState, error) {
	var a AuthState
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil, errors.Wrap(err, "authstate.FromJSON Unmarshal")
	}
	return &a, nil
}
