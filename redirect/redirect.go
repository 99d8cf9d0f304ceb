// Package redirect completes the browser legs of the login and logout flows.
package redirect

import (
	"context"

	"github.com/jrsteele09/go-sso-client/sessions"
)

// Opener shows a URL to the user, typically by launching a browser.
type Opener func(ctx context.Context, url string) error

// Resumer hands the outcome of a flow back to the host target named when the flow began.
// Exactly one of session and err is set; both are nil after a logout.
type Resumer interface {
	Resume(target string, session *sessions.Session, err *sessions.Error)
}

// ResumerFunc adapts a function to Resumer.
type ResumerFunc func(target string, session *sessions.Session, err *sessions.Error)

func (f ResumerFunc) Resume(target string, session *sessions.Session, err *sessions.Error) {
	f(target, session, err)
}
