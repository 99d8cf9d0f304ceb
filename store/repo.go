// Package store defines the durable key/value table the session state is persisted to.
package store

// Keys of the persisted session fields. One row per field; a missing key means the field is unset.
const (
	KeyAuthState        = "authStateInJson"
	KeyClaims           = "idTokenPayloadInJson"
	KeyPostAuthTarget   = "tokenResponseIntent"
	KeyPostLogoutTarget = "logoutResponseIntent"
	KeyLogoutEndpoint   = "logoutEndpoint"
	KeyIdentityProvider = "idpInJson"
	KeyInitOngoing      = "smInitOngoing"
	KeyNetworkAvailable = "networkAvailable"
)

// Keys lists every persisted key.
var Keys = []string{
	KeyAuthState,
	KeyClaims,
	KeyPostAuthTarget,
	KeyPostLogoutTarget,
	KeyLogoutEndpoint,
	KeyIdentityProvider,
	KeyInitOngoing,
	KeyNetworkAvailable,
}

// Repo is a flat string keyed table.
type Repo interface {
	// Name identifies the underlying store. At most one session store exists per name.
	Name() string
	Get(key string) (string, bool, error)
	GetAll() (map[string]string, error)
	// PutAll upserts the given rows.
	PutAll(values map[string]string) error
	Delete(keys ...string) error
	Clear() error
}
