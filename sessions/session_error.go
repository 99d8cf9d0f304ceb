package sessions

import (
	"encoding/json"
	"fmt"

	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/transport"
)

// ErrorCode enumerates every failure the session manager reports.
type ErrorCode int

const (
	InitServiceConfigLoadError ErrorCode = iota
	// InitAuthStateParseError is reserved. Malformed persisted state is logged and dropped instead.
	InitAuthStateParseError
	InitNetworkError
	InitExpiredSessionError
	InitNoSessionError
	AuthorizationNotInitializedError
	AuthorizationServerError
	AuthorizationNetworkError
	AuthorizationOAuthError
	AuthorizationTokenRequestError
	AuthorizationIDTokenValidateError
	SessionRefreshExpiredSessionError
	SessionRefreshNoSessionError
	SessionRefreshOAuthError
	SessionRefreshNetworkError
	SessionRefreshServerError
	LogoutNoEndSessionURLError
	LogoutNoSessionError
	LogoutNetworkError
	LogoutServerError
	LogoutNotInitializedError
	UnknownError
)

var errorCodeNames = map[ErrorCode]string{
	InitServiceConfigLoadError:        "INIT_SERVICE_CONFIG_LOAD_ERROR",
	InitAuthStateParseError:           "INIT_AUTH_STATE_PARSE_ERROR",
	InitNetworkError:                  "INIT_NETWORK_ERROR",
	InitExpiredSessionError:           "INIT_EXPIRED_SESSION_ERROR",
	InitNoSessionError:                "INIT_NO_SESSION_ERROR",
	AuthorizationNotInitializedError:  "AUTHORIZATION_NOT_INITIALIZED_ERROR",
	AuthorizationServerError:          "AUTHORIZATION_SERVER_ERROR",
	AuthorizationNetworkError:         "AUTHORIZATION_NETWORK_ERROR",
	AuthorizationOAuthError:           "AUTHORIZATION_OAUTH_ERROR",
	AuthorizationTokenRequestError:    "AUTHORIZATION_TOKEN_REQUEST_ERROR",
	AuthorizationIDTokenValidateError: "AUTHORIZATION_ID_TOKEN_VALIDATE_ERROR",
	SessionRefreshExpiredSessionError: "SESSION_REFRESH_EXPIRED_SESSION_ERROR",
	SessionRefreshNoSessionError:      "SESSION_REFRESH_NO_SESSION_ERROR",
	SessionRefreshOAuthError:          "SESSION_REFRESH_OAUTH_ERROR",
	SessionRefreshNetworkError:        "SESSION_REFRESH_NETWORK_ERROR",
	SessionRefreshServerError:         "SESSION_REFRESH_SERVER_ERROR",
	LogoutNoEndSessionURLError:        "LOGOUT_ERROR_NO_END_SESSION_URL_ERROR",
	LogoutNoSessionError:              "LOGOUT_ERROR_NO_SESSION_ERROR",
	LogoutNetworkError:                "LOGOUT_ERROR_NETWORK_ERROR",
	LogoutServerError:                 "LOGOUT_ERROR_SERVER_ERROR",
	LogoutNotInitializedError:         "LOGOUT_ERROR_NOT_INITIALIZED_ERROR",
	UnknownError:                      "UNKNOWN_ERROR",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return errorCodeNames[UnknownError]
}

// ParseErrorCode is the inverse of String.
func ParseErrorCode(name string) (ErrorCode, error) {
	for code, n := range errorCodeNames {
		if n == name {
			return code, nil
		}
	}
	return UnknownError, internalerrors.Wrapf(internalerrors.ErrNotFound, "[ParseErrorCode] %q", name)
}

func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ErrorCode) UnmarshalText(b []byte) error {
	code, err := ParseErrorCode(string(b))
	if err != nil {
		return err
	}
	*c = code
	return nil
}

// Error is a classified session failure delivered to listeners and callbacks.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

type errorDocument struct {
	Code    ErrorCode        `json:"code"`
	Message string           `json:"message"`
	Cause   *transport.Error `json:"cause,omitempty"`
}

// MarshalJSON keeps the transport cause, if any, so a resumed caller can still classify it.
func (e *Error) MarshalJSON() ([]byte, error) {
	doc := errorDocument{Code: e.Code, Message: e.Message}
	var te *transport.Error
	if internalerrors.As(e.Cause, &te) {
		doc.Cause = te
	}
	return json.Marshal(doc)
}

func (e *Error) UnmarshalJSON(b []byte) error {
	var doc errorDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	e.Code = doc.Code
	e.Message = doc.Message
	e.Cause = nil
	if doc.Cause != nil {
		e.Cause = doc.Cause
	}
	return nil
}

type errorClass int

const (
	classServer errorClass = iota
	classNetwork
	classOAuth
	classUnknown
)

// classify prioritizes the error code over the category.
func classify(err error) errorClass {
	var te *transport.Error
	if !internalerrors.As(err, &te) {
		return classUnknown
	}
	switch {
	case te.Code == transport.CodeServerError,
		te.Category == transport.CategoryAuthorization && te.Code == transport.CodeTemporarilyUnavailable:
		return classServer
	case te.Code == transport.CodeNetworkError:
		return classNetwork
	case te.Category == transport.CategoryAuthorization, te.Category == transport.CategoryToken:
		return classOAuth
	default:
		return classUnknown
	}
}

// ClassifyAuthorization maps a transport failure during authorization to an error code.
func ClassifyAuthorization(err error) ErrorCode {
	switch classify(err) {
	case classServer:
		return AuthorizationServerError
	case classNetwork:
		return AuthorizationNetworkError
	case classOAuth:
		return AuthorizationOAuthError
	default:
		return UnknownError
	}
}

// ClassifyRefresh maps a transport failure during a token refresh to an error code.
func ClassifyRefresh(err error) ErrorCode {
	switch classify(err) {
	case classServer:
		return SessionRefreshServerError
	case classNetwork:
		return SessionRefreshNetworkError
	case classOAuth:
		return SessionRefreshOAuthError
	default:
		return UnknownError
	}
}
