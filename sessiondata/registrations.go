package sessiondata

import (
	"github.com/jrsteele09/go-sso-client/events"
	"github.com/jrsteele09/go-sso-client/sessions"
)

// AddListener registers a lifecycle listener and its connectivity subscription under handle.
// A second registration under the same handle replaces the first.
func (d *Data) AddListener(handle string, listener sessions.Listener, connectivity Unregisterer) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if old, ok := d.connectivity[handle]; ok {
		old.Unregister()
		delete(d.connectivity, handle)
	}
	if connectivity != nil {
		d.connectivity[handle] = connectivity
	}

	for i, entry := range d.listeners {
		if entry.handle == handle {
			d.listeners[i].listener = listener
			return
		}
	}
	d.listeners = append(d.listeners, listenerEntry{handle: handle, listener: listener})
}

// RemoveListener drops the listener and connectivity subscription of handle.
// Returns false when handle was not registered.
func (d *Data) RemoveListener(handle string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	if reg, ok := d.connectivity[handle]; ok {
		reg.Unregister()
		delete(d.connectivity, handle)
	}
	for i, entry := range d.listeners {
		if entry.handle == handle {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Listeners returns the registered listeners in registration order.
func (d *Data) Listeners() []sessions.Listener {
	d.lock.Lock()
	defer d.lock.Unlock()
	listeners := make([]sessions.Listener, 0, len(d.listeners))
	for _, entry := range d.listeners {
		listeners = append(listeners, entry.listener)
	}
	return listeners
}

// HasConnectivityRegistration reports whether handle holds a connectivity subscription.
func (d *Data) HasConnectivityRegistration(handle string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	_, ok := d.connectivity[handle]
	return ok
}

// RegisterEvent adds event to the filter of handle, creating the filter on first use.
// The latest receiver registered under handle gets every accumulated event.
func (d *Data) RegisterEvent(handle string, receiver events.Receiver, event events.EventType) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if n, ok := d.notifiers[handle]; ok {
		d.notifiers[handle] = events.NewNotifier(receiver, append(n.Events(), event)...)
		return
	}
	d.notifiers[handle] = events.NewNotifier(receiver, event)
	d.notifierOrder = append(d.notifierOrder, handle)
}

// UnregisterAllEvents drops the filter of handle. Returns false when none existed.
func (d *Data) UnregisterAllEvents(handle string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if _, ok := d.notifiers[handle]; !ok {
		return false
	}
	delete(d.notifiers, handle)
	for i, h := range d.notifierOrder {
		if h == handle {
			d.notifierOrder = append(d.notifierOrder[:i], d.notifierOrder[i+1:]...)
			break
		}
	}
	return true
}

// Notifiers returns the event filters in registration order.
func (d *Data) Notifiers() []*events.Notifier {
	d.lock.Lock()
	defer d.lock.Unlock()
	notifiers := make([]*events.Notifier, 0, len(d.notifierOrder))
	for _, h := range d.notifierOrder {
		notifiers = append(notifiers, d.notifiers[h])
	}
	return notifiers
}
