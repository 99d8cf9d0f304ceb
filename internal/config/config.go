package config

type Config interface {
	EnvConfig
	SessionConfig
	SecurityConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetLogLevel() string
	GetStoreBackend() StoreBackend
	GetStoreName() string
	GetStorePath() string
	GetStoreKey() string
	GetRedisAddr() string
	GetIdentityProviderFile() string
	GetCallbackListenAddr() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Session
	Security
}

func New() Config {
	return mainConfig{}
}
