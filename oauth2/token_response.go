package oauth2

import "time"

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749,
// as received by the client for both the authorization_code and refresh_token grants.
type TokenResponse struct {
	// AccessToken is used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Absent: when the provider only issued an ID token
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token containing user identity information.
	// Only present: When "openid" scope was requested
	// Note: Many providers omit it from refresh responses
	IdToken *string `json:"id_token,omitempty"`

	// TokenType indicates how to use the access token.
	// Example: "Bearer"
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 900 (for 15 minutes)
	ExpiresIn int `json:"expires_in,omitempty"`

	// Expiry is the absolute access token expiry when the transport already resolved it.
	// Takes precedence over ExpiresIn.
	Expiry *time.Time `json:"expiry,omitempty"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// Absent: when the provider did not rotate it, the previous one stays valid
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope indicates the access token's granted permissions.
	// Example: "openid profile email"
	Scope string `json:"scope,omitempty"`
}

// ExpiresAt resolves the absolute access token expiry relative to when the response was received.
// Returns nil when the provider gave no lifetime.
func (t *TokenResponse) ExpiresAt(receivedAt time.Time) *time.Time {
	if t.Expiry != nil && !t.Expiry.IsZero() {
		expiry := t.Expiry.UTC()
		return &expiry
	}
	if t.ExpiresIn <= 0 {
		return nil
	}
	expiry := receivedAt.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	return &expiry
}
