// Package auth drives the OIDC session lifecycle: initialize, authorize, refresh and logout.
package auth

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-sso-client/dispatch"
	"github.com/jrsteele09/go-sso-client/idp"
	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/network"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/jrsteele09/go-sso-client/sessiondata"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/store"
	"github.com/jrsteele09/go-sso-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultRefreshTolerance = 60 * time.Second

// LogoutRequester performs the browser side of a logout. It resets the local tokens once it
// has captured what it needs.
type LogoutRequester interface {
	PerformLogoutRequest(ctx context.Context, idToken string, provider *idp.IdentityProvider, endpoint, target string) error
}

// SessionManager coordinates one client of the shared session store. Several managers may
// share a store; each owns one listener registration and one event filter, keyed by its handle.
type SessionManager struct {
	handle     string
	data       *sessiondata.Data
	provider   *idp.IdentityProvider
	transport  transport.Transport
	logout     LogoutRequester
	checker    network.Checker
	monitor    *network.Monitor
	dispatcher dispatch.Dispatcher

	nowFunc          func() time.Time
	skewTolerance    time.Duration
	refreshTolerance time.Duration
	requirePKCE      bool
	logger           zerolog.Logger

	disposed atomic.Bool
}

// Option defines a function type to modify the SessionManager instance.
type Option func(*SessionManager)

// WithDispatcher sets the context listener and callback invocations are posted to.
func WithDispatcher(dispatcher dispatch.Dispatcher) Option {
	return func(m *SessionManager) {
		m.dispatcher = dispatcher
	}
}

// WithMonitor subscribes every added listener to connectivity transitions seen by monitor.
func WithMonitor(monitor *network.Monitor) Option {
	return func(m *SessionManager) {
		m.monitor = monitor
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(m *SessionManager) {
		m.nowFunc = nowFunc
	}
}

func WithClockSkewTolerance(tolerance time.Duration) Option {
	return func(m *SessionManager) {
		m.skewTolerance = tolerance
	}
}

// WithRefreshTolerance sets how close to expiry an access token is refreshed.
func WithRefreshTolerance(tolerance time.Duration) Option {
	return func(m *SessionManager) {
		m.refreshTolerance = tolerance
	}
}

func WithPKCE(required bool) Option {
	return func(m *SessionManager) {
		m.requirePKCE = required
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *SessionManager) {
		m.logger = logger
	}
}

// NewSessionManager binds a manager to the session store and records provider in it.
func NewSessionManager(
	data *sessiondata.Data,
	provider *idp.IdentityProvider,
	t transport.Transport,
	logout LogoutRequester,
	checker network.Checker,
	options ...Option,
) (*SessionManager, error) {
	if data == nil {
		return nil, internalerrors.Wrapf(internalerrors.ErrMissingDependency, "[NewSessionManager] session data is required")
	}
	if provider == nil {
		return nil, internalerrors.Wrapf(internalerrors.ErrIdentityProviderNil, "[NewSessionManager]")
	}
	if t == nil {
		return nil, internalerrors.Wrapf(internalerrors.ErrMissingDependency, "[NewSessionManager] transport is required")
	}
	if logout == nil {
		return nil, internalerrors.Wrapf(internalerrors.ErrMissingDependency, "[NewSessionManager] logout requester is required")
	}
	if checker == nil {
		return nil, internalerrors.Wrapf(internalerrors.ErrMissingDependency, "[NewSessionManager] network checker is required")
	}

	m := &SessionManager{
		handle:           uuid.NewString(),
		data:             data,
		provider:         provider,
		transport:        t,
		logout:           logout,
		checker:          checker,
		dispatcher:       dispatch.Immediate{},
		nowFunc:          time.Now,
		skewTolerance:    sessions.ClockSkewTolerance,
		refreshTolerance: defaultRefreshTolerance,
		requirePKCE:      true,
	}
	m.logger = log.With().Str("component", "sessionmanager").Str("handle", m.handle).Logger()
	for _, opt := range options {
		opt(m)
	}

	data.SetIdentityProvider(provider)
	return m, nil
}

// Handle identifies this manager's registrations in the session store.
func (m *SessionManager) Handle() string {
	return m.handle
}

// Session returns a view over the current session state.
func (m *SessionManager) Session() *sessions.Session {
	return sessions.New(m.data, sessions.WithNowFunc(m.nowFunc), sessions.WithClockSkewTolerance(m.skewTolerance))
}

// IsInitialized reports whether an identity provider is set and discovery metadata is attached.
func (m *SessionManager) IsInitialized() bool {
	return m.data.IdentityProvider() != nil && m.data.AuthState().Discovery != nil
}

// Dispose drops this manager's registrations. A disposed manager ignores further calls.
func (m *SessionManager) Dispose() {
	if m.disposed.Swap(true) {
		return
	}
	m.data.RemoveListener(m.handle)
	m.data.UnregisterAllEvents(m.handle)
	m.logger.Debug().Msg("disposed")
}

func (m *SessionManager) isDisposed(op string) bool {
	if m.disposed.Load() {
		m.logger.Warn().Str("op", op).Err(internalerrors.ErrDisposed).Msg("call on disposed session manager ignored")
		return true
	}
	return false
}

// SessionReset clears the tokens and claims, keeping discovery metadata and the provider.
func (m *SessionManager) SessionReset() {
	m.data.ResetSession()
}

// DataReset clears a durable store without a live session store.
func DataReset(repo store.Repo) error {
	return sessiondata.DiskReset(repo)
}

// Initialize restores the persisted session and brings it up to date. The outcome arrives
// through Listener.Initialized.
func (m *SessionManager) Initialize(ctx context.Context) {
	if m.isDisposed("Initialize") {
		return
	}
	if len(m.data.Listeners()) == 0 {
		m.logger.Error().Msg("initialize called with no listeners registered")
	}
	if err := m.data.ReadFromDurableStore(); err != nil {
		m.logger.Error().Err(err).Msg("failed to read session data")
	}
	if m.data.IdentityProvider() == nil {
		m.data.SetIdentityProvider(m.provider)
	}
	m.data.SetInitOngoing(true)

	if !m.checkNetwork(ctx, nil) {
		as := m.data.AuthState()
		session := m.Session()
		if as.Discovery != nil && as.IsAuthorized() && as.AccessToken() != nil && session.Status() == sessions.Valid {
			m.logger.Info().Msg("offline, using cached session")
			m.reportInitializeResult(session, nil)
			return
		}
		m.reportInitializeResult(nil, sessions.NewError(sessions.InitNetworkError, "cannot initialize without a network connection", nil))
		return
	}

	if m.data.AuthState().Discovery == nil {
		md, err := m.transport.FetchDiscovery(ctx, m.data.IdentityProvider().DiscoveryEndpoint())
		if err != nil {
			m.logger.Error().Err(err).Msg("failed to fetch discovery document")
			m.reportInitializeResult(nil, sessions.NewError(sessions.InitServiceConfigLoadError, "could not load service configuration", err))
			return
		}
		m.data.AttachDiscovery(md, md.EndSessionEndpoint)
	}
	m.postDiscovery(ctx)
}

func (m *SessionManager) postDiscovery(ctx context.Context) {
	as := m.data.AuthState()
	session := m.Session()
	switch {
	case !as.IsAuthorized() || as.AccessToken() == nil:
		m.reportInitializeResult(nil, sessions.NewError(sessions.InitNoSessionError, "no previous session", nil))
	case session.Status() != sessions.Valid:
		m.reportInitializeResult(nil, sessions.NewError(sessions.InitExpiredSessionError, "previous session has expired", nil))
	case as.NeedsTokenRefresh(m.nowFunc(), m.refreshTolerance):
		m.refresh(ctx, nil)
	default:
		m.reportInitializeResult(session, nil)
	}
}

// Authorize starts a login. target is resumed by the redirect receiver once the code exchange
// completes. A "prompt" entry in params is sent as the prompt parameter.
func (m *SessionManager) Authorize(ctx context.Context, target string, params map[string]string) {
	if m.isDisposed("Authorize") {
		return
	}
	if !m.checkNetwork(ctx, nil) {
		m.failAuthorize(sessions.NewError(sessions.AuthorizationNetworkError, "cannot authorize without a network connection", nil))
		return
	}
	if !m.checkInitialized(nil) {
		m.failAuthorize(sessions.NewError(sessions.AuthorizationNotInitializedError, "session manager is not initialized", internalerrors.ErrNotInitialized))
		return
	}

	m.data.SetPostAuthTarget(target)
	provider := m.data.IdentityProvider()
	req := oauthmodel.NewAuthorizationRequest(m.data.AuthState().Discovery,
		provider.ClientID(), provider.RedirectURI(), provider.Scope(), params, m.requirePKCE)
	m.data.SetPendingAuthorization(req)

	m.logger.Debug().
		Str("endpoint", req.AuthorizationEndpoint).
		Str("prompt", req.Prompt).
		Strs("extraParams", req.ExtraParameterNames()).
		Msg("launching authorization request")
	if err := m.transport.LaunchAuthorization(ctx, req, target); err != nil {
		m.failAuthorize(sessions.NewError(sessions.ClassifyAuthorization(err), "failed to launch authorization", err))
	}
}

// GetFreshSession delivers the session to callback, refreshing it first only when needed.
func (m *SessionManager) GetFreshSession(ctx context.Context, callback sessions.Callback) {
	if m.isDisposed("GetFreshSession") {
		return
	}
	if !m.checkNetwork(ctx, callback) || !m.checkInitialized(callback) {
		return
	}
	if m.data.AuthState().NeedsTokenRefresh(m.nowFunc(), m.refreshTolerance) {
		m.refresh(ctx, callback)
		return
	}
	session := m.Session()
	m.deliver(callback, session, nil)
}

// RefreshSession always refreshes and delivers the result to callback and the listeners.
func (m *SessionManager) RefreshSession(ctx context.Context, callback sessions.Callback) {
	if m.isDisposed("RefreshSession") {
		return
	}
	if !m.checkNetwork(ctx, callback) || !m.checkInitialized(callback) {
		return
	}
	m.refresh(ctx, callback)
}

func (m *SessionManager) refresh(ctx context.Context, callback sessions.Callback) {
	if err := m.refreshTokens(ctx); err != nil {
		code := sessions.ClassifyRefresh(err)
		if internalerrors.Is(err, internalerrors.ErrNoRefreshToken) || internalerrors.Is(err, internalerrors.ErrSessionReplaced) {
			code = sessions.SessionRefreshNoSessionError
		}
		m.logger.Warn().Err(err).Stringer("code", code).Msg("failed to refresh tokens")
		serr := sessions.NewError(code, "failed to refresh tokens", err)
		m.reportInitializeResult(nil, serr)
		m.deliver(callback, nil, serr)
		return
	}
	session := m.Session()
	m.logger.Debug().Int("accessTokenLen", len(session.AccessToken())).Msg("refreshed tokens")
	m.reportInitializeResult(session, nil)
	m.deliver(callback, session, nil)
}

// refreshTokens redeems the current refresh token. Concurrent refreshes of the same token share
// one request, and the response is dropped if the session changed while it was in flight.
func (m *SessionManager) refreshTokens(ctx context.Context) error {
	as := m.data.AuthState()
	provider := m.data.IdentityProvider()
	if as.RefreshToken() == nil || as.Discovery == nil || provider == nil {
		return internalerrors.Wrapf(internalerrors.ErrNoRefreshToken, "[SessionManager.refreshTokens]")
	}
	refreshToken := *as.RefreshToken()

	return m.data.Refresh(refreshToken, func() error {
		resp, err := m.transport.RefreshToken(ctx,
			oauthmodel.NewRefreshRequest(as.Discovery, refreshToken),
			oauthmodel.ClientAuth{ClientID: provider.ClientID(), ClientSecret: provider.ClientSecret()})
		if err != nil {
			if sessions.ClassifyRefresh(err) == sessions.SessionRefreshOAuthError {
				m.data.ResetSessionIfRefreshTokenUnchanged(refreshToken)
			}
			return errors.Wrap(err, "SessionManager.refreshTokens RefreshToken")
		}
		if !m.data.UpdateAuthStateIfRefreshTokenUnchanged(refreshToken, resp, m.nowFunc()) {
			return internalerrors.Wrapf(internalerrors.ErrSessionReplaced, "[SessionManager.refreshTokens]")
		}
		return nil
	})
}

// Logout refreshes the session once and then hands the refreshed ID token to the logout
// requester. Initialize must be called again once the logout redirect has completed.
func (m *SessionManager) Logout(ctx context.Context, target string) {
	if m.isDisposed("Logout") {
		return
	}
	if !m.checkNetwork(ctx, nil) {
		m.failLogout(sessions.NewError(sessions.LogoutNetworkError, "cannot logout without a network connection", nil))
		return
	}
	if !m.checkInitialized(nil) {
		m.failLogout(sessions.NewError(sessions.LogoutNotInitializedError, "session manager is not initialized", internalerrors.ErrNotInitialized))
		return
	}

	if m.data.AuthState().RefreshToken() == nil || !m.Session().Validate() {
		serr := sessions.NewError(sessions.LogoutNoSessionError, "no session to log out of", internalerrors.ErrNoSession)
		m.failLogout(serr)
		m.forEachListener(func(l sessions.Listener) { l.DidLoseSession(serr) })
		return
	}
	endpoint := m.data.LogoutEndpoint()
	if endpoint == "" {
		m.failLogout(sessions.NewError(sessions.LogoutNoEndSessionURLError, "provider publishes no end_session_endpoint", internalerrors.ErrMissingEndpoint))
		return
	}

	if err := m.refreshTokens(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("refresh before logout failed, resetting session")
		m.data.ResetSession()
		return
	}

	idToken := m.Session().IDToken()
	if err := m.logout.PerformLogoutRequest(ctx, idToken, m.data.IdentityProvider(), endpoint, target); err != nil {
		m.failLogout(sessions.NewError(sessions.LogoutServerError, "logout request failed", err))
	}
}

// checkNetwork tests connectivity. An unavailable network is reported to callback.
func (m *SessionManager) checkNetwork(ctx context.Context, callback sessions.Callback) bool {
	available := m.checker.IsAvailable(ctx)
	if !available {
		m.deliver(callback, nil, sessions.NewError(sessions.SessionRefreshNetworkError, "network connection lost", nil))
	}
	m.networkChanged(available)
	return available
}

// networkChanged records availability and tells the listeners when it differs from the stored flag.
func (m *SessionManager) networkChanged(available bool) {
	if m.data.SwapNetworkAvailable(available) == available {
		return
	}
	m.logger.Info().Bool("available", available).Msg("network availability changed")
	m.forEachListener(func(l sessions.Listener) {
		if available {
			l.DidGainNetwork()
		} else {
			l.DidLoseNetwork()
		}
	})
}

// checkInitialized reports a missing initialization to callback and to the listeners.
func (m *SessionManager) checkInitialized(callback sessions.Callback) bool {
	if m.IsInitialized() {
		return true
	}
	serr := sessions.NewError(sessions.SessionRefreshNoSessionError, "no previous session", internalerrors.ErrNotInitialized)
	m.deliver(callback, nil, serr)
	m.reportInitializeResult(nil, serr)
	return false
}

// reportInitializeResult completes a pending initialize, or otherwise reports a refreshed or
// lost session. The flag is checked when the task runs, not when it is posted.
func (m *SessionManager) reportInitializeResult(session *sessions.Session, serr *sessions.Error) {
	m.dispatcher.Post(func() {
		listeners := m.data.Listeners()
		if m.data.CompareAndClearInitOngoing() {
			for _, l := range listeners {
				l.Initialized(session, serr)
			}
			return
		}
		if len(listeners) == 0 {
			m.logger.Error().Msg("no listeners for session result")
		}
		for _, l := range listeners {
			if session != nil {
				l.DidRefreshSession(session)
			} else {
				l.DidLoseSession(serr)
			}
		}
	})
}

func (m *SessionManager) failAuthorize(serr *sessions.Error) {
	m.logger.Warn().Err(serr).Msg("authorize failed")
	m.forEachListener(func(l sessions.Listener) { l.DidFailAuthorize(serr) })
}

func (m *SessionManager) failLogout(serr *sessions.Error) {
	m.logger.Warn().Err(serr).Msg("logout failed")
	m.forEachListener(func(l sessions.Listener) { l.DidFailLogout(serr) })
}

func (m *SessionManager) forEachListener(fn func(sessions.Listener)) {
	m.dispatcher.Post(func() {
		for _, l := range m.data.Listeners() {
			fn(l)
		}
	})
}

func (m *SessionManager) deliver(callback sessions.Callback, session *sessions.Session, serr *sessions.Error) {
	if callback == nil {
		return
	}
	m.dispatcher.Post(func() {
		callback(session, serr)
	})
}
