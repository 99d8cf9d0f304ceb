package sessions

import "github.com/jrsteele09/go-sso-client/events"

// Listener receives session lifecycle callbacks. All calls arrive on the dispatcher.
type Listener interface {
	events.Receiver

	// Initialized reports the outcome of initialize. Exactly one of session and err is set.
	Initialized(session *Session, err *Error)
	DidFailAuthorize(err *Error)
	DidFailLogout(err *Error)
	DidLoseSession(err *Error)
	// DidResumeSession is reserved.
	DidResumeSession(session *Session)
	DidRefreshSession(session *Session)
	DidLoseNetwork()
	DidGainNetwork()
}

// Callback receives the result of a single session request.
type Callback func(session *Session, err *Error)

// NopListener implements Listener with no-ops. Embed it to handle only some callbacks.
type NopListener struct{}

var _ Listener = NopListener{}

func (NopListener) Initialized(*Session, *Error)  {}
func (NopListener) DidFailAuthorize(*Error)       {}
func (NopListener) DidFailLogout(*Error)          {}
func (NopListener) DidLoseSession(*Error)         {}
func (NopListener) DidResumeSession(*Session)     {}
func (NopListener) DidRefreshSession(*Session)    {}
func (NopListener) DidLoseNetwork()               {}
func (NopListener) DidGainNetwork()               {}
func (NopListener) Notification(events.EventType) {}
