package auth

import (
	"github.com/jrsteele09/go-sso-client/events"
	"github.com/jrsteele09/go-sso-client/network"
	"github.com/jrsteele09/go-sso-client/sessions"
)

// AddListener registers listener under this manager's handle, together with a connectivity
// subscription when a monitor is configured. A second call replaces the first.
func (m *SessionManager) AddListener(listener sessions.Listener) {
	if m.isDisposed("AddListener") {
		return
	}
	var subscription *network.Subscription
	if m.monitor != nil {
		subscription = m.monitor.Subscribe(m.networkChanged)
	}
	if subscription != nil {
		m.data.AddListener(m.handle, listener, subscription)
	} else {
		m.data.AddListener(m.handle, listener, nil)
	}
	m.logger.Debug().Bool("connectivity", subscription != nil).Msg("listener added")
}

// RemoveListener drops this manager's listener and connectivity subscription.
func (m *SessionManager) RemoveListener() {
	if !m.data.RemoveListener(m.handle) {
		m.logger.Warn().Msg("remove listener called with unknown handle")
		return
	}
	m.logger.Debug().Msg("listener removed")
}

// RegisterForEvent adds event to this manager's filter. Registrations accumulate.
func (m *SessionManager) RegisterForEvent(receiver events.Receiver, event events.EventType) {
	if m.isDisposed("RegisterForEvent") {
		return
	}
	m.data.RegisterEvent(m.handle, receiver, event)
	m.logger.Debug().Stringer("event", event).Msg("registered for event")
}

// UnregisterAllEvents drops this manager's event filter.
func (m *SessionManager) UnregisterAllEvents() {
	if m.data.UnregisterAllEvents(m.handle) {
		m.logger.Debug().Msg("unregistered all events")
	}
}
