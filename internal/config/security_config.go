package config

import "strconv"

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetVerifyIDTokenSignature() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetRequirePKCE() bool {
	return boolEnv("SSO_REQUIRE_PKCE", true)
}

// GetVerifyIDTokenSignature enables JWKS verification of ID tokens returned by the code exchange.
func (Security) GetVerifyIDTokenSignature() bool {
	return boolEnv("SSO_VERIFY_ID_TOKEN", false)
}

func boolEnv(envVar string, defaultValue bool) bool {
	b, err := strconv.ParseBool(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return b
}
