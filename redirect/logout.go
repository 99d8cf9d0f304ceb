package redirect

import (
	"context"
	"net/url"

	"github.com/jrsteele09/go-sso-client/idp"
	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/sessiondata"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogoutService sends the end-session request to the identity provider.
type LogoutService struct {
	data   *sessiondata.Data
	opener Opener
	logger zerolog.Logger
}

type LogoutOption func(*LogoutService)

func WithLogoutLogger(logger zerolog.Logger) LogoutOption {
	return func(s *LogoutService) {
		s.logger = logger
	}
}

func NewLogoutService(data *sessiondata.Data, opener Opener, options ...LogoutOption) *LogoutService {
	s := &LogoutService{
		data:   data,
		opener: opener,
		logger: log.With().Str("component", "logout").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// LogoutURL builds the end-session URL. Existing query parameters on endpoint are kept.
func LogoutURL(endpoint, postLogoutRedirectURI, idToken string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrap(err, "redirect.LogoutURL Parse")
	}
	if !u.IsAbs() {
		return "", internalerrors.Wrapf(internalerrors.ErrInvalidURI, "[redirect.LogoutURL] %q", endpoint)
	}
	q := u.Query()
	q.Set(oauth2.ParamPostLogoutRedirectURI, postLogoutRedirectURI)
	q.Set(oauth2.ParamIDTokenHint, idToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PerformLogoutRequest drops the local tokens, remembers target for the logout redirect and
// opens the end-session URL.
func (s *LogoutService) PerformLogoutRequest(ctx context.Context, idToken string, provider *idp.IdentityProvider, endpoint, target string) error {
	if provider == nil {
		return internalerrors.Wrapf(internalerrors.ErrIdentityProviderNil, "[LogoutService.PerformLogoutRequest]")
	}
	logoutURL, err := LogoutURL(endpoint, provider.LogoutRedirectURI(), idToken)
	if err != nil {
		return err
	}

	s.data.ResetSession()
	s.data.SetPostLogoutTarget(target)

	if s.opener == nil {
		return internalerrors.Wrapf(internalerrors.ErrMissingDependency, "[LogoutService.PerformLogoutRequest] opener")
	}
	if err := s.opener(ctx, logoutURL); err != nil {
		s.logger.Error().Err(err).Msg("failed to open end-session url")
		return errors.Wrap(err, "LogoutService.PerformLogoutRequest open")
	}
	s.logger.Info().Str("target", target).Msg("end-session request launched")
	return nil
}
