// Package transport defines the OAuth transport the session manager drives and the error
// values it reports.
package transport

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
)

// Transport performs the network side of the OIDC flows.
type Transport interface {
	// FetchDiscovery loads the provider configuration from the discovery endpoint.
	FetchDiscovery(ctx context.Context, discoveryURI string) (*oauth2.DiscoveryMetadata, error)
	// ExchangeCode redeems an authorization code at the token endpoint.
	ExchangeCode(ctx context.Context, req *oauthmodel.TokenRequest, auth oauthmodel.ClientAuth) (*oauth2.TokenResponse, error)
	// RefreshToken redeems a refresh token at the token endpoint.
	RefreshToken(ctx context.Context, req *oauthmodel.TokenRequest, auth oauthmodel.ClientAuth) (*oauth2.TokenResponse, error)
	// LaunchAuthorization opens the authorization request. Completion arrives later on the redirect.
	LaunchAuthorization(ctx context.Context, req *oauthmodel.AuthorizationRequest, resumeTarget string) error
}

// Category groups transport errors by where they came from.
type Category string

const (
	CategoryGeneral       Category = "general"
	CategoryAuthorization Category = "authorization"
	CategoryToken         Category = "token"
)

// Well known error codes. OAuth error responses carry their own code verbatim.
const (
	CodeServerError            = "server_error"
	CodeTemporarilyUnavailable = "temporarily_unavailable"
	CodeNetworkError           = "network_error"
	CodeInvalidResponse        = "invalid_response"
	CodeInvalidGrant           = "invalid_grant"
	CodeInvalidIDToken         = "invalid_id_token"
	CodeBrowserError           = "browser_error"
)

// Error is a transport failure with a category and code.
type Error struct {
	Category    Category `json:"category"`
	Code        string   `json:"code"`
	Description string   `json:"description,omitempty"`
	Cause       error    `json:"-"`
}

func NewError(category Category, code, description string, cause error) *Error {
	return &Error{Category: category, Code: code, Description: description, Cause: cause}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error %s", e.Category, e.Code)
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}
