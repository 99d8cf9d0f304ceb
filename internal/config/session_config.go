package config

import "time"

type SessionConfig interface {
	GetClockSkewTolerance() time.Duration
	GetTokenRefreshTolerance() time.Duration
	GetTransportTimeout() time.Duration
	GetNetworkPollInterval() time.Duration
	GetNetworkCheckTimeout() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetClockSkewTolerance is applied to both the expiry and the issue time of the ID token.
func (Session) GetClockSkewTolerance() time.Duration {
	return 120 * time.Second
}

// GetTokenRefreshTolerance is how close to expiry an access token is considered stale.
func (Session) GetTokenRefreshTolerance() time.Duration {
	return 60 * time.Second
}

func (Session) GetTransportTimeout() time.Duration {
	return durationEnv("SSO_TRANSPORT_TIMEOUT", 30*time.Second)
}

func (Session) GetNetworkPollInterval() time.Duration {
	return durationEnv("SSO_NETWORK_POLL_INTERVAL", 5*time.Second)
}

func (Session) GetNetworkCheckTimeout() time.Duration {
	return durationEnv("SSO_NETWORK_CHECK_TIMEOUT", 3*time.Second)
}

func durationEnv(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
