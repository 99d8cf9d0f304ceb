package oauth2

// ResponseType represents the OAuth 2.0 response type requested from the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// The authorization endpoint returns a code that is exchanged for tokens at the token endpoint.
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypeNone sends the verifier as the challenge. Only used when PKCE is disabled.
	CodeMethodTypeNone CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, redirect_uri, code_verifier (if PKCE), client credentials
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenCodeGrant exchanges a refresh token for new tokens.
	// Token request includes: refresh_token, client credentials
	RefreshTokenCodeGrant GrantType = "refresh_token"
)

// Standard authorization request and response parameter names.
const (
	ParamPrompt                = "prompt"
	ParamNonce                 = "nonce"
	ParamState                 = "state"
	ParamCode                  = "code"
	ParamError                 = "error"
	ParamErrorDescription      = "error_description"
	ParamIDTokenHint           = "id_token_hint"
	ParamPostLogoutRedirectURI = "post_logout_redirect_uri"
)
