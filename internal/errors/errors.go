package errors

import (
	"errors"
	"fmt"
)

// Common error types for the SSO session client
var (
	// Configuration errors
	ErrFieldNotSpecified   = errors.New("field not specified")
	ErrInvalidURI          = errors.New("invalid uri")
	ErrInvalidStoreKey     = errors.New("invalid store key")
	ErrMissingDependency   = errors.New("missing dependency")
	ErrIdentityProviderNil = errors.New("identity provider not set")

	// Session errors
	ErrNotInitialized  = errors.New("session manager not initialized")
	ErrNoSession       = errors.New("no session")
	ErrNoRefreshToken  = errors.New("no refresh token")
	ErrSessionReplaced = errors.New("session changed while request was in flight")
	ErrDisposed        = errors.New("session manager disposed")

	// Token errors
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingClaim  = errors.New("missing claim")
	ErrNonceMismatch = errors.New("nonce mismatch")

	// Authorization redirect errors
	ErrStateMismatch            = errors.New("state mismatch")
	ErrMissingAuthorizationCode = errors.New("missing authorization code")
	ErrNoPendingAuthorization   = errors.New("no pending authorization request")

	// Discovery errors
	ErrMissingEndpoint = errors.New("missing endpoint")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
