package redirect

import (
	"context"
	"net/url"
	"time"

	"github.com/jrsteele09/go-sso-client/dispatch"
	"github.com/jrsteele09/go-sso-client/events"
	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/jrsteele09/go-sso-client/sessiondata"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Receiver handles the redirects that come back from the identity provider.
type Receiver struct {
	data           *sessiondata.Data
	transport      transport.Transport
	resumer        Resumer
	dispatcher     dispatch.Dispatcher
	nowFunc        func() time.Time
	sessionOptions []sessions.Option
	logger         zerolog.Logger
}

type ReceiverOption func(*Receiver)

func WithDispatcher(dispatcher dispatch.Dispatcher) ReceiverOption {
	return func(r *Receiver) {
		r.dispatcher = dispatcher
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) ReceiverOption {
	return func(r *Receiver) {
		r.nowFunc = nowFunc
	}
}

// WithSessionOptions configures the session views handed to the resumer.
func WithSessionOptions(options ...sessions.Option) ReceiverOption {
	return func(r *Receiver) {
		r.sessionOptions = options
	}
}

func WithReceiverLogger(logger zerolog.Logger) ReceiverOption {
	return func(r *Receiver) {
		r.logger = logger
	}
}

func NewReceiver(data *sessiondata.Data, t transport.Transport, resumer Resumer, options ...ReceiverOption) *Receiver {
	r := &Receiver{
		data:       data,
		transport:  t,
		resumer:    resumer,
		dispatcher: dispatch.Immediate{},
		nowFunc:    time.Now,
		logger:     log.With().Str("component", "redirect").Logger(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// HandleAuthorizationRedirect completes a login: it checks the response against the pending
// request, exchanges the code, stores the tokens and resumes the post-auth target.
// The returned error is the one delivered to the resumer.
func (r *Receiver) HandleAuthorizationRedirect(ctx context.Context, query url.Values) *sessions.Error {
	resp := oauthmodel.ParseAuthorizationResponse(query)
	target := r.data.PostAuthTarget()

	if resp.IsError() {
		cause := transport.NewError(transport.CategoryAuthorization, resp.Error, resp.ErrorDescription, nil)
		return r.fail(target, sessions.NewError(sessions.ClassifyAuthorization(cause), "authorization failed", cause))
	}

	as := r.data.AuthState()
	pending := as.PendingAuthorization
	provider := r.data.IdentityProvider()
	switch {
	case pending == nil:
		return r.fail(target, sessions.NewError(sessions.AuthorizationTokenRequestError, "no authorization in progress",
			internalerrors.ErrNoPendingAuthorization))
	case resp.State != pending.State:
		return r.fail(target, sessions.NewError(sessions.AuthorizationTokenRequestError, "state does not match the request",
			internalerrors.ErrStateMismatch))
	case resp.Code == "":
		return r.fail(target, sessions.NewError(sessions.AuthorizationTokenRequestError, "redirect carries no code",
			internalerrors.ErrMissingAuthorizationCode))
	case provider == nil || as.Discovery == nil:
		return r.fail(target, sessions.NewError(sessions.AuthorizationTokenRequestError, "session manager not initialized",
			internalerrors.ErrNotInitialized))
	}

	tokenResp, err := r.transport.ExchangeCode(ctx,
		oauthmodel.NewCodeExchangeRequest(as.Discovery, pending, resp.Code),
		oauthmodel.ClientAuth{ClientID: provider.ClientID(), ClientSecret: provider.ClientSecret()})
	r.data.SetPostAuthTarget("")
	if err != nil {
		return r.fail(target, sessions.NewError(sessions.AuthorizationTokenRequestError, "code exchange failed", err))
	}

	r.data.UpdateAuthState(tokenResp, r.nowFunc())

	session := sessions.New(r.data, r.sessionOptions...)
	if !session.Validate() {
		return r.fail(target, sessions.NewError(sessions.AuthorizationIDTokenValidateError, "id token failed validation",
			internalerrors.ErrInvalidToken))
	}
	if pending.Nonce != "" {
		if claims := r.data.Claims(); claims == nil || utils.Value(claims.Nonce) != pending.Nonce {
			return r.fail(target, sessions.NewError(sessions.AuthorizationIDTokenValidateError, "id token nonce does not match",
				internalerrors.ErrNonceMismatch))
		}
	}

	r.logger.Info().Str("target", target).Msg("login complete")
	r.notify(r.data.Notifiers(), events.LoginComplete)
	r.dispatcher.Post(func() {
		r.resumer.Resume(target, session, nil)
	})
	return nil
}

// HandleLogoutRedirect completes a logout: it notifies the event filters, wipes every piece of
// session data and resumes the post-logout target.
func (r *Receiver) HandleLogoutRedirect(_ context.Context) {
	notifiers := r.data.Notifiers()
	target := r.data.PostLogoutTarget()

	r.notify(notifiers, events.LogoutComplete)
	r.data.ResetAllData()
	r.logger.Info().Str("target", target).Msg("logout complete")
	r.dispatcher.Post(func() {
		r.resumer.Resume(target, nil, nil)
	})
}

func (r *Receiver) notify(notifiers []*events.Notifier, event events.EventType) {
	for _, n := range notifiers {
		n := n
		r.dispatcher.Post(func() {
			n.Send(event)
		})
	}
}

func (r *Receiver) fail(target string, err *sessions.Error) *sessions.Error {
	r.logger.Warn().Err(err).Str("target", target).Msg("authorization redirect failed")
	r.dispatcher.Post(func() {
		r.resumer.Resume(target, nil, err)
	})
	return err
}
