package tokentest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// RS256 is the only asymmetric algorithm the test keys sign with.
const RS256 = "RS256"

// JWKS is a JSON Web Key Set as served from a provider's jwks_uri.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is the public half of an RSA signing key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// RSAKey signs ID tokens that a JWKS verifier accepts.
type RSAKey struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
}

// NewRSAKey generates a 2048 bit key, the minimum verifiers accept.
func NewRSAKey(t testing.TB, keyID string) *RSAKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return &RSAKey{KeyID: keyID, PrivateKey: privateKey}
}

// Sign signs claims with RS256 and sets the kid header.
func (k *RSAKey) Sign(t testing.TB, claims jwtlib.MapClaims) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	tok.Header["kid"] = k.KeyID
	signed, err := tok.SignedString(k.PrivateKey)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func (k *RSAKey) JWK() JWK {
	pub := k.PrivateKey.PublicKey
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: k.KeyID,
		Alg: RS256,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// JWKS wraps the public key in a key set.
func (k *RSAKey) JWKS() JWKS {
	return JWKS{Keys: []JWK{k.JWK()}}
}
