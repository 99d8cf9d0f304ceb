package oauth2

import (
	"encoding/json"
	"strings"

	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/pkg/errors"
)

// DiscoveryMetadata is the provider configuration published at the OIDC discovery endpoint.
type DiscoveryMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	EndSessionEndpoint    string   `json:"end_session_endpoint,omitempty"`
	UserInfoEndpoint      string   `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string   `json:"jwks_uri,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
	SigningAlgorithms     []string `json:"id_token_signing_alg_values_supported,omitempty"`

	// Document is the raw discovery document, kept so provider specific keys remain readable.
	Document json.RawMessage `json:"document,omitempty"`
}

// ParseDiscovery decodes a discovery document and checks the endpoints needed for the code flow.
func ParseDiscovery(document []byte) (*DiscoveryMetadata, error) {
	var raw map[string]any
	if err := json.Unmarshal(document, &raw); err != nil {
		return nil, errors.Wrap(err, "oauth2.ParseDiscovery Unmarshal")
	}

	compact, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "oauth2.ParseDiscovery Marshal")
	}

	md := &DiscoveryMetadata{
		Issuer:                stringValue(raw, "issuer"),
		AuthorizationEndpoint: stringValue(raw, "authorization_endpoint"),
		TokenEndpoint:         stringValue(raw, "token_endpoint"),
		EndSessionEndpoint:    stringValue(raw, "end_session_endpoint"),
		UserInfoEndpoint:      stringValue(raw, "userinfo_endpoint"),
		JWKSURI:               stringValue(raw, "jwks_uri"),
		ScopesSupported:       utils.ToStringSlice(raw["scopes_supported"]),
		SigningAlgorithms:     utils.ToStringSlice(raw["id_token_signing_alg_values_supported"]),
		Document:              compact,
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return md, nil
}

// Validate requires the issuer and the endpoints of the authorization code flow.
func (m *DiscoveryMetadata) Validate() error {
	switch {
	case strings.TrimSpace(m.Issuer) == "":
		return internalerrors.Wrapf(internalerrors.ErrMissingEndpoint, "[DiscoveryMetadata.Validate] issuer")
	case strings.TrimSpace(m.AuthorizationEndpoint) == "":
		return internalerrors.Wrapf(internalerrors.ErrMissingEndpoint, "[DiscoveryMetadata.Validate] authorization_endpoint")
	case strings.TrimSpace(m.TokenEndpoint) == "":
		return internalerrors.Wrapf(internalerrors.ErrMissingEndpoint, "[DiscoveryMetadata.Validate] token_endpoint")
	}
	return nil
}

// Value returns a string valued key from the raw document, or "" when absent.
func (m *DiscoveryMetadata) Value(key string) string {
	if len(m.Document) == 0 {
		return ""
	}
	var raw map[string]any
	if err := json.Unmarshal(m.Document, &raw); err != nil {
		return ""
	}
	return stringValue(raw, key)
}

func stringValue(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}
