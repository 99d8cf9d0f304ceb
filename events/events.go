package events

import (
	"sort"
	"sync"
)

// EventType is a notification category a receiver can subscribe to.
type EventType int

const (
	LoginComplete EventType = iota
	LogoutComplete
)

func (e EventType) String() string {
	switch e {
	case LoginComplete:
		return "LOGIN_COMPLETE"
	case LogoutComplete:
		return "LOGOUT_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Receiver gets the notifications a Notifier lets through.
type Receiver interface {
	Notification(event EventType)
}

// Notifier forwards only the registered event types to a single receiver.
type Notifier struct {
	receiver Receiver
	lock     sync.RWMutex
	events   map[EventType]struct{}
}

func NewNotifier(receiver Receiver, events ...EventType) *Notifier {
	n := &Notifier{
		receiver: receiver,
		events:   make(map[EventType]struct{}),
	}
	n.Register(events...)
	return n
}

// Register adds event types to the filter. Registrations accumulate.
func (n *Notifier) Register(events ...EventType) {
	n.lock.Lock()
	defer n.lock.Unlock()
	for _, e := range events {
		n.events[e] = struct{}{}
	}
}

func (n *Notifier) IsRegistered(event EventType) bool {
	n.lock.RLock()
	defer n.lock.RUnlock()
	_, ok := n.events[event]
	return ok
}

// Events returns the registered event types in ascending order.
func (n *Notifier) Events() []EventType {
	n.lock.RLock()
	defer n.lock.RUnlock()
	events := make([]EventType, 0, len(n.events))
	for e := range n.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}

// Send forwards the event when it is registered. Returns true when it was delivered.
func (n *Notifier) Send(event EventType) bool {
	if n.receiver == nil || !n.IsRegistered(event) {
		return false
	}
	n.receiver.Notification(event)
	return true
}
