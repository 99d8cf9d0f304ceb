// Package tokentest mints signed ID tokens and signing keys for tests.
package tokentest

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var signingKey = []byte("tokentest-signing-key")

const (
	Issuer   = "https://idp.example.com"
	Audience = "client-1"
	Subject  = "user-1"
)

// Claims returns a complete ID token claim set issued at now and expiring after ttl.
func Claims(now time.Time, ttl time.Duration) jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"iss":         Issuer,
		"sub":         Subject,
		"aud":         Audience,
		"name":        "John Doe",
		"given_name":  "John",
		"family_name": "Doe",
		"iat":         now.Unix(),
		"auth_time":   now.Unix(),
		"exp":         now.Add(ttl).Unix(),
		"jti":         uuid.New().String(),
	}
}

// Sign signs the claims with a fixed HMAC key.
func Sign(t testing.TB, claims jwtlib.MapClaims) string {
	t.Helper()
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// IDToken is shorthand for Sign(t, Claims(now, ttl)).
func IDToken(t testing.TB, now time.Time, ttl time.Duration) string {
	t.Helper()
	return Sign(t, Claims(now, ttl))
}
