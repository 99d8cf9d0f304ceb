package sessions

import (
	"time"

	"github.com/jrsteele09/go-sso-client/authstate"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/token"
)

// ClockSkewTolerance is the allowance applied to ID token expiry and issue time.
const ClockSkewTolerance = 120 * time.Second

// Status is the computed state of a session.
type Status int

const (
	NoSession Status = iota
	Expired
	Valid
)

func (s Status) String() string {
	switch s {
	case Expired:
		return "EXPIRED"
	case Valid:
		return "VALID"
	default:
		return "NO_SESSION"
	}
}

// Source is the state a Session reads on every call.
type Source interface {
	AuthState() *authstate.AuthState
	Claims() *token.IDTokenClaims
	// Snapshot returns the auth state and the claims derived from it as one consistent read.
	Snapshot() (*authstate.AuthState, *token.IDTokenClaims)
	NetworkAvailable() bool
}

// Session is a read only view over the session store. It holds no state of its own,
// so every accessor reflects the store at the time of the call.
type Session struct {
	source    Source
	nowFunc   func() time.Time
	tolerance time.Duration
}

type Option func(*Session)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(s *Session) {
		s.nowFunc = nowFunc
	}
}

func WithClockSkewTolerance(tolerance time.Duration) Option {
	return func(s *Session) {
		s.tolerance = tolerance
	}
}

func New(source Source, options ...Option) *Session {
	s := &Session{
		source:    source,
		nowFunc:   time.Now,
		tolerance: ClockSkewTolerance,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Session) IsAuthorized() bool {
	return s.source.AuthState().IsAuthorized()
}

// IsOnline reports the network flag of the store.
func (s *Session) IsOnline() bool {
	return s.source.NetworkAvailable()
}

func (s *Session) AccessToken() string {
	return utils.Value(s.source.AuthState().AccessToken())
}

func (s *Session) RefreshToken() string {
	return utils.Value(s.source.AuthState().RefreshToken())
}

func (s *Session) IDToken() string {
	return utils.Value(s.source.AuthState().IDToken())
}

// Scope is the scope granted by the last token response.
func (s *Session) Scope() string {
	as := s.source.AuthState()
	if as.LastTokenResponse == nil {
		return ""
	}
	return as.Scope
}

// Claims returns the current ID token claims, or nil.
func (s *Session) Claims() *token.IDTokenClaims {
	return s.source.Claims()
}

func (s *Session) Status() Status {
	as, claims := s.source.Snapshot()
	if !as.IsAuthorized() || claims == nil || !claims.Valid || as.AccessToken() == nil {
		return NoSession
	}
	if claims.IsExpired(s.nowFunc(), s.tolerance) {
		return Expired
	}
	return Valid
}

// Validate checks the claims against expiry and issue time, both with the skew tolerance.
func (s *Session) Validate() bool {
	_, claims := s.source.Snapshot()
	if claims == nil {
		return false
	}
	return claims.Validate(s.nowFunc(), s.tolerance)
}

// Equal compares tokens and the serialized auth state.
func (s *Session) Equal(other *Session) bool {
	if other == nil {
		return false
	}
	if s.AccessToken() != other.AccessToken() || s.IDToken() != other.IDToken() || s.RefreshToken() != other.RefreshToken() {
		return false
	}
	a, errA := s.source.AuthState().ToJSON()
	b, errB := other.source.AuthState().ToJSON()
	return errA == nil && errB == nil && a == b
}
