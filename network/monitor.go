package network

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Monitor polls a Checker and tells subscribers when availability changes.
// Steady state polls notify nobody.
type Monitor struct {
	checker  Checker
	interval time.Duration
	logger   zerolog.Logger

	lock        sync.Mutex
	subscribers map[string]func(available bool)
	order       []string
	last        *bool
}

type MonitorOption func(*Monitor)

func WithInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.interval = interval
	}
}

func WithLogger(logger zerolog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func NewMonitor(checker Checker, options ...MonitorOption) *Monitor {
	m := &Monitor{
		checker:     checker,
		interval:    5 * time.Second,
		logger:      log.With().Str("component", "network").Logger(),
		subscribers: make(map[string]func(bool)),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Subscription is a registration with a Monitor.
type Subscription struct {
	monitor *Monitor
	id      string
}

// Unregister removes the subscription. Safe to call more than once.
func (s *Subscription) Unregister() {
	if s == nil || s.monitor == nil {
		return
	}
	s.monitor.lock.Lock()
	defer s.monitor.lock.Unlock()
	if _, ok := s.monitor.subscribers[s.id]; !ok {
		return
	}
	delete(s.monitor.subscribers, s.id)
	for i, id := range s.monitor.order {
		if id == s.id {
			s.monitor.order = append(s.monitor.order[:i], s.monitor.order[i+1:]...)
			break
		}
	}
}

// Subscribe registers fn to be called on every availability transition.
func (m *Monitor) Subscribe(fn func(available bool)) *Subscription {
	m.lock.Lock()
	defer m.lock.Unlock()
	id := uuid.NewString()
	m.subscribers[id] = fn
	m.order = append(m.order, id)
	return &Subscription{monitor: m, id: id}
}

// Subscribers returns the number of active subscriptions.
func (m *Monitor) Subscribers() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.subscribers)
}

// Poll checks availability once and notifies on a transition. The first poll only records the state.
func (m *Monitor) Poll(ctx context.Context) bool {
	available := m.checker.IsAvailable(ctx)

	m.lock.Lock()
	changed := m.last != nil && *m.last != available
	m.last = &available
	var fns []func(bool)
	if changed {
		for _, id := range m.order {
			fns = append(fns, m.subscribers[id])
		}
	}
	m.lock.Unlock()

	if changed {
		m.logger.Info().Bool("available", available).Msg("network availability changed")
	}
	for _, fn := range fns {
		fn(available)
	}
	return available
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}
