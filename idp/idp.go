package idp

import (
	"encoding/json"
	"net/url"
	"os"
	"strings"

	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Registration is the serialized form of an identity provider registration.
type Registration struct {
	DiscoveryEndpoint string `json:"discoveryEndpoint" yaml:"discovery_endpoint"`
	ClientID          string `json:"clientId" yaml:"client_id"`
	ClientSecret      string `json:"clientSecret" yaml:"client_secret"`
	RedirectURI       string `json:"redirectUri" yaml:"redirect_uri"`
	LogoutRedirectURI string `json:"logoutRedirectUri" yaml:"logout_redirect_uri"`
	Scope             string `json:"scope" yaml:"scope"`
}

// IdentityProvider describes the OIDC provider endpoint and the client registration with it.
// It is immutable once constructed.
type IdentityProvider struct {
	reg Registration
}

// New validates every field and returns the identity provider.
func New(discoveryEndpoint, clientID, clientSecret, redirectURI, logoutRedirectURI, scope string) (*IdentityProvider, error) {
	return FromRegistration(Registration{
		DiscoveryEndpoint: discoveryEndpoint,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		RedirectURI:       redirectURI,
		LogoutRedirectURI: logoutRedirectURI,
		Scope:             scope,
	})
}

func FromRegistration(reg Registration) (*IdentityProvider, error) {
	fields := []struct {
		name  string
		value string
		uri   bool
	}{
		{"discoveryEndpoint", reg.DiscoveryEndpoint, true},
		{"clientId", reg.ClientID, false},
		{"clientSecret", reg.ClientSecret, false},
		{"redirectUri", reg.RedirectURI, true},
		{"logoutRedirectUri", reg.LogoutRedirectURI, true},
		{"scope", reg.Scope, false},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return nil, internalerrors.Wrapf(internalerrors.ErrFieldNotSpecified, "[idp.New] %s", f.name)
		}
		if f.uri {
			if u, err := url.Parse(f.value); err != nil || u.Scheme == "" {
				return nil, internalerrors.Wrapf(internalerrors.ErrInvalidURI, "[idp.New] %s", f.name)
			}
		}
	}
	return &IdentityProvider{reg: reg}, nil
}

// LoadFile reads a YAML registration file.
func LoadFile(path string) (*IdentityProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "idp.LoadFile Open")
	}
	defer f.Close()

	var reg Registration
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&reg); err != nil {
		return nil, errors.Wrap(err, "idp.LoadFile Decode")
	}
	return FromRegistration(reg)
}

func (p *IdentityProvider) DiscoveryEndpoint() string { return p.reg.DiscoveryEndpoint }
func (p *IdentityProvider) ClientID() string          { return p.reg.ClientID }
func (p *IdentityProvider) ClientSecret() string      { return p.reg.ClientSecret }
func (p *IdentityProvider) RedirectURI() string       { return p.reg.RedirectURI }
func (p *IdentityProvider) LogoutRedirectURI() string { return p.reg.LogoutRedirectURI }
func (p *IdentityProvider) Scope() string             { return p.reg.Scope }

// Registration returns a copy of the registration values.
func (p *IdentityProvider) Registration() Registration { return p.reg }

// Scopes splits the space separated scope string.
func (p *IdentityProvider) Scopes() []string {
	return strings.Fields(p.reg.Scope)
}

// HasScope checks if the registration requests a specific scope
func (p *IdentityProvider) HasScope(scope string) bool {
	for _, s := range p.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

func (p *IdentityProvider) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.reg)
}

func (p *IdentityProvider) UnmarshalJSON(b []byte) error {
	var reg Registration
	if err := json.Unmarshal(b, &reg); err != nil {
		return err
	}
	parsed, err := FromRegistration(reg)
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}
