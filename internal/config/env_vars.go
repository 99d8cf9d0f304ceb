package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appNameVar      = "APP_NAME"
	folderEnvVar    = "FOLDER"
	logLevelVar     = "LOG_LEVEL"
	storeBackendVar = "SSO_STORE"
	storeNameVar    = "SSO_STORE_NAME"
	storeKeyVar     = "SSO_STORE_KEY"
	redisAddrVar    = "SSO_REDIS_ADDR"
	idpFileVar      = "SSO_IDP_FILE"
	callbackAddrVar = "SSO_CALLBACK_ADDR"

	defaultStoreName = "mobileSsoSdk_savedState"
)

// StoreBackend selects the durable store implementation.
type StoreBackend string

const (
	StoreBackendFile   StoreBackend = "file"
	StoreBackendRedis  StoreBackend = "redis"
	StoreBackendSQL    StoreBackend = "sql"
	StoreBackendMemory StoreBackend = "memory"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go SSO Client")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetStoreBackend returns the configured backend, falling back to the file store for unknown values.
func (EnvVars) GetStoreBackend() StoreBackend {
	switch backend := StoreBackend(strings.ToLower(GetEnv(storeBackendVar, string(StoreBackendFile)))); backend {
	case StoreBackendFile, StoreBackendRedis, StoreBackendSQL, StoreBackendMemory:
		return backend
	default:
		return StoreBackendFile
	}
}

// GetStoreName is the logical name of the durable store. One session store exists per name.
func (EnvVars) GetStoreName() string {
	return GetEnv(storeNameVar, defaultStoreName)
}

// GetStorePath is the file used by the file and sql backends.
func (e EnvVars) GetStorePath() string {
	ext := ".json"
	if e.GetStoreBackend() == StoreBackendSQL {
		ext = ".db"
	}
	return filepath.Join(e.GetDataFolder(), e.GetStoreName()+ext)
}

// GetStoreKey returns a hex encoded 32 byte key used to seal values at rest. Empty disables sealing.
func (EnvVars) GetStoreKey() string {
	return GetEnv(storeKeyVar, "")
}

func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "localhost:6379")
}

func (e EnvVars) GetIdentityProviderFile() string {
	return GetEnv(idpFileVar, filepath.Join(e.GetDataFolder(), "idp.yaml"))
}

func (EnvVars) GetCallbackListenAddr() string {
	return GetEnv(callbackAddrVar, "127.0.0.1:8765")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
