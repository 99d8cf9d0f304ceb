// Package sessiondata holds the process wide session state and keeps it in step with the
// durable store.
package sessiondata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/jrsteele09/go-sso-client/authstate"
	"github.com/jrsteele09/go-sso-client/events"
	"github.com/jrsteele09/go-sso-client/idp"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/store"
	"github.com/jrsteele09/go-sso-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Unregisterer is a registration that can be cancelled, such as a connectivity subscription.
type Unregisterer interface {
	Unregister()
}

type listenerEntry struct {
	handle   string
	listener sessions.Listener
}

// defaultNetworkAvailable is the network flag of a new, freshly read or fully reset store.
// The first check that finds the network down reports a transition.
const defaultNetworkAvailable = true

// claimsCache is the persisted form of the claims. Source is a digest of the ID token the
// claims were decoded from, so a cache left behind by an older token is ignored.
type claimsCache struct {
	Source string               `json:"source"`
	Claims *token.IDTokenClaims `json:"claims"`
}

// Data is the session state store. Every accessor takes the same lock, and every mutation is
// written through to the durable store before the lock is released.
type Data struct {
	repo   store.Repo
	logger zerolog.Logger

	lock             sync.Mutex
	authState        *authstate.AuthState
	claims           *token.IDTokenClaims
	claimsDirty      bool
	provider         *idp.IdentityProvider
	logoutEndpoint   string
	postAuthTarget   string
	postLogoutTarget string
	initOngoing      bool
	networkAvailable bool

	listeners     []listenerEntry
	connectivity  map[string]Unregisterer
	notifiers     map[string]*events.Notifier
	notifierOrder []string

	refreshGroup singleflight.Group
}

var _ sessions.Source = (*Data)(nil)

type Option func(*Data)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Data) {
		d.logger = logger
	}
}

// New creates an empty store bound to repo. Use a Registry to keep one per durable store.
func New(repo store.Repo, options ...Option) *Data {
	d := &Data{
		repo:             repo,
		logger:           log.With().Str("component", "sessiondata").Logger(),
		authState:        authstate.New(nil),
		networkAvailable: defaultNetworkAvailable,
		connectivity:     make(map[string]Unregisterer),
		notifiers:        make(map[string]*events.Notifier),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// ReadFromDurableStore replaces the persisted fields with the stored values.
// A malformed field is logged and left at its default.
func (d *Data) ReadFromDurableStore() error {
	values, err := d.repo.GetAll()
	if err != nil {
		return errors.Wrap(err, "Data.ReadFromDurableStore GetAll")
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	d.authState = authstate.New(nil)
	if v, ok := values[store.KeyAuthState]; ok {
		if as, err := authstate.FromJSON(v); err != nil {
			d.logger.Warn().Err(err).Str("key", store.KeyAuthState).Msg("ignoring malformed field")
		} else {
			d.authState = as
		}
	}

	d.provider = nil
	if v, ok := values[store.KeyIdentityProvider]; ok {
		var p idp.IdentityProvider
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			d.logger.Warn().Err(err).Str("key", store.KeyIdentityProvider).Msg("ignoring malformed field")
		} else {
			d.provider = &p
		}
	}

	d.claims = nil
	d.claimsDirty = true
	if v, ok := values[store.KeyClaims]; ok {
		var cache claimsCache
		if err := json.Unmarshal([]byte(v), &cache); err != nil {
			d.logger.Warn().Err(err).Str("key", store.KeyClaims).Msg("ignoring malformed field")
		} else if cache.Claims != nil && cache.Source == idTokenDigest(d.authState.IDToken()) {
			d.claims = cache.Claims
			d.claimsDirty = false
		}
	}

	d.logoutEndpoint = values[store.KeyLogoutEndpoint]
	d.postAuthTarget = values[store.KeyPostAuthTarget]
	d.postLogoutTarget = values[store.KeyPostLogoutTarget]
	d.initOngoing = d.parseBool(values, store.KeyInitOngoing, false)
	d.networkAvailable = d.parseBool(values, store.KeyNetworkAvailable, defaultNetworkAvailable)

	d.logger.Debug().
		Int("authStateLen", len(values[store.KeyAuthState])).
		Bool("provider", d.provider != nil).
		Bool("claimsCached", !d.claimsDirty).
		Msg("read session data")
	return nil
}

// WriteToDurableStore writes every field. Unchanged state produces identical values.
func (d *Data) WriteToDurableStore() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.persistLocked()
}

func (d *Data) persistLocked() error {
	if err := d.saveLocked(); err != nil {
		d.logger.Error().Err(err).Msg("failed to persist session data")
		return err
	}
	return nil
}

func (d *Data) saveLocked() error {
	present := make(map[string]string, len(store.Keys))
	var absent []string

	as, err := d.authState.ToJSON()
	if err != nil {
		return errors.Wrap(err, "Data.persist auth state")
	}
	present[store.KeyAuthState] = as

	if d.provider != nil {
		b, err := json.Marshal(d.provider)
		if err != nil {
			return errors.Wrap(err, "Data.persist identity provider")
		}
		present[store.KeyIdentityProvider] = string(b)
	} else {
		absent = append(absent, store.KeyIdentityProvider)
	}

	if d.claims != nil && !d.claimsDirty {
		b, err := json.Marshal(claimsCache{Source: idTokenDigest(d.authState.IDToken()), Claims: d.claims})
		if err != nil {
			return errors.Wrap(err, "Data.persist claims")
		}
		present[store.KeyClaims] = string(b)
	} else {
		absent = append(absent, store.KeyClaims)
	}

	for key, value := range map[string]string{
		store.KeyLogoutEndpoint:   d.logoutEndpoint,
		store.KeyPostAuthTarget:   d.postAuthTarget,
		store.KeyPostLogoutTarget: d.postLogoutTarget,
	} {
		if value == "" {
			absent = append(absent, key)
		} else {
			present[key] = value
		}
	}
	present[store.KeyInitOngoing] = strconv.FormatBool(d.initOngoing)
	present[store.KeyNetworkAvailable] = strconv.FormatBool(d.networkAvailable)

	if err := d.repo.PutAll(present); err != nil {
		return errors.Wrap(err, "Data.persist PutAll")
	}
	if err := d.repo.Delete(absent...); err != nil {
		return errors.Wrap(err, "Data.persist Delete")
	}
	d.logger.Debug().Int("authStateLen", len(as)).Int("unset", len(absent)).Msg("saved session data")
	return nil
}

// persist writes through. Failures are logged by persistLocked. Callers hold the lock.
func (d *Data) persist() {
	_ = d.persistLocked()
}

// AuthState returns a copy of the current auth state.
func (d *Data) AuthState() *authstate.AuthState {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.authState.Clone()
}

func (d *Data) SetAuthState(as *authstate.AuthState) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if as == nil {
		as = authstate.New(nil)
	}
	d.authState = as.Clone()
	d.claimsDirty = true
	d.persist()
}

// UpdateAuthState applies a token response and invalidates the claims.
func (d *Data) UpdateAuthState(resp *oauth2.TokenResponse, receivedAt time.Time) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.authState.Update(resp, receivedAt)
	d.claimsDirty = true
	d.persist()
}

// UpdateAuthStateIfRefreshTokenUnchanged applies a refresh response only when the store still
// holds the refresh token the request was made with.
func (d *Data) UpdateAuthStateIfRefreshTokenUnchanged(refreshToken string, resp *oauth2.TokenResponse, receivedAt time.Time) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	current := d.authState.RefreshToken()
	if current == nil || *current != refreshToken {
		d.logger.Warn().Msg("discarding refresh response, session changed while the request was in flight")
		return false
	}
	d.authState.Update(resp, receivedAt)
	d.claimsDirty = true
	d.persist()
	return true
}

// SetPendingAuthorization records the authorization request awaiting its redirect.
func (d *Data) SetPendingAuthorization(req *oauthmodel.AuthorizationRequest) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.authState.PendingAuthorization = req
	d.persist()
}

// AttachDiscovery stores fetched discovery metadata and the logout endpoint derived from it.
func (d *Data) AttachDiscovery(discovery *oauth2.DiscoveryMetadata, logoutEndpoint string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.authState.AttachDiscovery(discovery)
	d.logoutEndpoint = logoutEndpoint
	d.persist()
}

// Claims returns the claims of the current ID token, decoding them again if the token changed.
func (d *Data) Claims() *token.IDTokenClaims {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.claimsLocked()
}

// Snapshot returns a copy of the auth state and the claims of its ID token, read under one lock.
func (d *Data) Snapshot() (*authstate.AuthState, *token.IDTokenClaims) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.authState.Clone(), d.claimsLocked()
}

func (d *Data) claimsLocked() *token.IDTokenClaims {
	if !d.claimsDirty {
		return d.claims
	}

	d.claims = nil
	if idToken := d.authState.IDToken(); idToken != nil {
		claims, err := token.ParseIDToken(*idToken)
		if err != nil {
			d.logger.Warn().Err(err).Int("idTokenLen", len(*idToken)).Msg("failed to decode id token")
		} else {
			d.claims = claims
		}
	}
	d.claimsDirty = false
	d.persist()
	return d.claims
}

func (d *Data) IdentityProvider() *idp.IdentityProvider {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.provider
}

func (d *Data) SetIdentityProvider(p *idp.IdentityProvider) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.provider = p
	d.persist()
}

func (d *Data) LogoutEndpoint() string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.logoutEndpoint
}

func (d *Data) SetLogoutEndpoint(endpoint string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.logoutEndpoint = endpoint
	d.persist()
}

func (d *Data) PostAuthTarget() string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.postAuthTarget
}

func (d *Data) SetPostAuthTarget(target string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.postAuthTarget = target
	d.persist()
}

func (d *Data) PostLogoutTarget() string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.postLogoutTarget
}

func (d *Data) SetPostLogoutTarget(target string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.postLogoutTarget = target
	d.persist()
}

func (d *Data) InitOngoing() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.initOngoing
}

func (d *Data) SetInitOngoing(ongoing bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.initOngoing = ongoing
	d.persist()
}

// CompareAndClearInitOngoing clears the flag and returns true if it was set.
func (d *Data) CompareAndClearInitOngoing() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.initOngoing {
		return false
	}
	d.initOngoing = false
	d.persist()
	return true
}

func (d *Data) NetworkAvailable() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.networkAvailable
}

func (d *Data) SetNetworkAvailable(available bool) {
	d.SwapNetworkAvailable(available)
}

// SwapNetworkAvailable stores the flag and returns the previous value.
func (d *Data) SwapNetworkAvailable(available bool) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	previous := d.networkAvailable
	if previous != available {
		d.networkAvailable = available
		d.persist()
	}
	return previous
}

// Refresh runs fn at most once at a time per refresh token. Concurrent callers with the same
// refresh token wait for and share the first caller's result.
func (d *Data) Refresh(refreshToken string, fn func() error) error {
	_, err, _ := d.refreshGroup.Do(refreshToken, func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// ResetSession clears tokens and claims but keeps discovery metadata and the identity provider.
func (d *Data) ResetSession() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.authState = d.authState.Reset()
	d.claims = nil
	d.claimsDirty = false
	d.postAuthTarget = ""
	d.persist()
	d.logger.Info().Msg("session reset")
}

// ResetSessionIfRefreshTokenUnchanged resets the session only while it still holds refreshToken.
func (d *Data) ResetSessionIfRefreshTokenUnchanged(refreshToken string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	current := d.authState.RefreshToken()
	if current == nil || *current != refreshToken {
		return false
	}
	d.authState = d.authState.Reset()
	d.claims = nil
	d.claimsDirty = false
	d.persist()
	d.logger.Info().Msg("session reset after rejected refresh token")
	return true
}

// ResetAllData clears the durable store and every field, and drops all registrations.
func (d *Data) ResetAllData() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if err := d.repo.Clear(); err != nil {
		d.logger.Error().Err(err).Msg("failed to clear durable store")
	}
	d.authState = authstate.New(nil)
	d.claims = nil
	d.claimsDirty = false
	d.provider = nil
	d.logoutEndpoint = ""
	d.postAuthTarget = ""
	d.postLogoutTarget = ""
	d.initOngoing = false
	d.networkAvailable = defaultNetworkAvailable
	for _, reg := range d.connectivity {
		reg.Unregister()
	}
	d.connectivity = make(map[string]Unregisterer)
	d.listeners = nil
	d.notifiers = make(map[string]*events.Notifier)
	d.notifierOrder = nil
	d.logger.Info().Msg("all session data reset")
}

// DiskReset clears a durable store without a live Data instance.
func DiskReset(repo store.Repo) error {
	if err := repo.Clear(); err != nil {
		return errors.Wrap(err, "sessiondata.DiskReset Clear")
	}
	return nil
}

func (d *Data) parseBool(values map[string]string, key string, defaultValue bool) bool {
	v, ok := values[key]
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("ignoring malformed field")
		return defaultValue
	}
	return b
}

func idTokenDigest(idToken *string) string {
	if idToken == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(*idToken))
	return hex.EncodeToString(sum[:])
}
