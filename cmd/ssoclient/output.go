package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jrsteele09/go-sso-client/events"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/sessions"
)

// printListener writes session callbacks to the terminal and remembers the last outcome.
type printListener struct {
	lock      sync.Mutex
	w         io.Writer
	lastError *sessions.Error
}

var _ sessions.Listener = (*printListener)(nil)

func newPrintListener(w io.Writer) *printListener {
	return &printListener{w: w}
}

func (p *printListener) Initialized(session *sessions.Session, err *sessions.Error) {
	if err != nil {
		p.printf("initialize: %s\n", err.Code)
		p.setError(err)
		return
	}
	p.printf("initialize: %s\n", session.Status())
	p.setError(nil)
}

func (p *printListener) DidFailAuthorize(err *sessions.Error) {
	p.printf("authorize failed: %s\n", err.Code)
	p.setError(err)
}

func (p *printListener) DidFailLogout(err *sessions.Error) {
	p.printf("logout failed: %s\n", err.Code)
	p.setError(err)
}

func (p *printListener) DidLoseSession(err *sessions.Error) {
	if err != nil {
		p.printf("session lost: %s\n", err.Code)
	} else {
		p.printf("session lost\n")
	}
	p.setError(err)
}

func (p *printListener) DidResumeSession(*sessions.Session) {}

func (p *printListener) DidRefreshSession(session *sessions.Session) {
	p.printf("session refreshed, expires %s\n", expiry(session))
	p.setError(nil)
}

func (p *printListener) DidLoseNetwork() {
	p.printf("network lost\n")
}

func (p *printListener) DidGainNetwork() {
	p.printf("network available\n")
}

func (p *printListener) Notification(event events.EventType) {
	p.printf("event: %s\n", event)
}

// LastError is the error of the most recent outcome, nil after a success.
func (p *printListener) LastError() *sessions.Error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.lastError
}

func (p *printListener) setError(err *sessions.Error) {
	p.lock.Lock()
	p.lastError = err
	p.lock.Unlock()
}

func (p *printListener) printf(format string, args ...any) {
	p.lock.Lock()
	defer p.lock.Unlock()
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func printSession(w io.Writer, session *sessions.Session) {
	fmt.Fprintf(w, "status:     %s\n", session.Status())
	fmt.Fprintf(w, "online:     %t\n", session.IsOnline())
	fmt.Fprintf(w, "authorized: %t\n", session.IsAuthorized())
	claims := session.Claims()
	if claims == nil {
		return
	}
	fmt.Fprintf(w, "subject:    %s\n", claims.Subject)
	if name := utils.Value(claims.Name); name != "" {
		fmt.Fprintf(w, "name:       %s\n", name)
	}
	fmt.Fprintf(w, "issuer:     %s\n", claims.Issuer)
	fmt.Fprintf(w, "expires:    %s\n", expiry(session))
	if scope := session.Scope(); scope != "" {
		fmt.Fprintf(w, "scope:      %s\n", scope)
	}
}

func expiry(session *sessions.Session) string {
	claims := session.Claims()
	if claims == nil || claims.ExpiresAt.IsZero() {
		return "unknown"
	}
	return claims.ExpiresAt.Local().Format(time.RFC3339)
}
