package oauthmodel

import "errors"

// Authorization request validation errors.
var (
	ErrMissingAuthorizationEndpoint = errors.New("no authorization endpoint")
	ErrInvalidCodeChallengeMethod   = errors.New("invalid code challenge method")
	ErrInvalidRedirectUri           = errors.New("invalid or no redirect uri")
	ErrInvalidResponseType          = errors.New("unsupported response type")
)
