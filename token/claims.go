package token

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/pkg/errors"
)

// Mandatory ID token claims. A payload missing any of them is invalid.
var mandatoryClaims = []string{"iat", "exp", "auth_time", "iss", "aud", "sub"}

// IDTokenClaims is the projection of an ID token payload used to judge session validity.
// The signature is not verified here; the token was received directly from the token endpoint.
type IDTokenClaims struct {
	Name       *string
	FamilyName *string
	GivenName  *string

	IssuedAt  time.Time
	AuthTime  time.Time
	ExpiresAt time.Time

	Issuer   string
	Audience []string
	Subject  string

	AccessTokenHash *string // at_hash
	ACR             *string
	Nonce           *string

	// Valid is false when a mandatory claim is missing or unparsable.
	Valid bool

	raw jwtlib.MapClaims
}

// ParseIDToken decodes the payload segment of a raw ID token.
func ParseIDToken(rawToken string) (*IDTokenClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, internalerrors.Wrapf(internalerrors.ErrInvalidToken, "[ParseIDToken] empty token")
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "token.ParseIDToken ParseUnverified")
	}

	mc, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, internalerrors.Wrapf(internalerrors.ErrInvalidToken, "[ParseIDToken] error extracting claims")
	}
	return FromMapClaims(mc), nil
}

// FromMapClaims builds the projection from decoded claims.
func FromMapClaims(mc jwtlib.MapClaims) *IDTokenClaims {
	c := &IDTokenClaims{raw: mc, Valid: true}

	for _, name := range mandatoryClaims {
		if _, ok := mc[name]; !ok {
			c.Valid = false
		}
	}

	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	} else {
		c.Valid = false
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	} else {
		c.Valid = false
	}
	if authTime, ok := numericDate(mc["auth_time"]); ok {
		c.AuthTime = authTime
	} else {
		c.Valid = false
	}

	var err error
	if c.Issuer, err = mc.GetIssuer(); err != nil || c.Issuer == "" {
		c.Valid = false
	}
	if c.Subject, err = mc.GetSubject(); err != nil || c.Subject == "" {
		c.Valid = false
	}
	if aud, err := mc.GetAudience(); err == nil && len(aud) > 0 {
		c.Audience = aud
	} else {
		c.Valid = false
	}

	c.Name = optionalString(mc, "name")
	c.FamilyName = optionalString(mc, "family_name")
	c.GivenName = optionalString(mc, "given_name")
	c.AccessTokenHash = optionalString(mc, "at_hash")
	c.ACR = optionalString(mc, "acr")
	c.Nonce = optionalString(mc, "nonce")
	return c
}

// IsExpired reports whether now is past the expiry plus the tolerance.
func (c *IDTokenClaims) IsExpired(now time.Time, tolerance time.Duration) bool {
	return now.After(c.ExpiresAt.Add(tolerance))
}

// Validate requires valid claims, an unexpired token and an issue time not in the future,
// each with the tolerance applied.
func (c *IDTokenClaims) Validate(now time.Time, tolerance time.Duration) bool {
	if !c.Valid {
		return false
	}
	return now.Before(c.ExpiresAt.Add(tolerance)) && now.After(c.IssuedAt.Add(-tolerance))
}

// Claim returns a raw claim value.
func (c *IDTokenClaims) Claim(name string) (any, bool) {
	v, ok := c.raw[name]
	return v, ok
}

// MarshalJSON writes the raw claims so a cached copy re-parses through FromMapClaims.
func (c *IDTokenClaims) MarshalJSON() ([]byte, error) {
	if c.raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.raw)
}

func (c *IDTokenClaims) UnmarshalJSON(b []byte) error {
	var mc jwtlib.MapClaims
	if err := json.Unmarshal(b, &mc); err != nil {
		return err
	}
	*c = *FromMapClaims(mc)
	return nil
}

func optionalString(mc jwtlib.MapClaims, name string) *string {
	s, ok := mc[name].(string)
	if !ok {
		return nil
	}
	return &s
}

func numericDate(v any) (time.Time, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int64:
		f = float64(n)
	case int:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		f = parsed
	default:
		return time.Time{}, false
	}
	round, frac := math.Modf(f)
	return time.Unix(int64(round), int64(frac*1e9)), true
}
