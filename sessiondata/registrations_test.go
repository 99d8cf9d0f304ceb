package sessiondata_test

import (
	"testing"

	"github.com/jrsteele09/go-sso-client/events"
	"github.com/jrsteele09/go-sso-client/sessiondata"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/store/repofake"
	"github.com/stretchr/testify/require"
)

type namedListener struct {
	sessions.NopListener
	name     string
	received []events.EventType
}

func (n *namedListener) Notification(e events.EventType) {
	n.received = append(n.received, e)
}

func TestListeners(t *testing.T) {
	t.Run("registration order", func(t *testing.T) {
		f := setupTestFixture(t)
		a, b := &namedListener{name: "a"}, &namedListener{name: "b"}
		f.data.AddListener("h1", a, nil)
		f.data.AddListener("h2", b, nil)
		require.Equal(t, []sessions.Listener{a, b}, f.data.Listeners())
	})

	t.Run("same handle replaces", func(t *testing.T) {
		f := setupTestFixture(t)
		first := &countingRegistration{}
		a, b := &namedListener{name: "a"}, &namedListener{name: "b"}
		f.data.AddListener("h1", a, first)
		f.data.AddListener("h1", b, &countingRegistration{})
		require.Equal(t, []sessions.Listener{b}, f.data.Listeners())
		require.Equal(t, int32(1), first.unregistered.Load())
		require.True(t, f.data.HasConnectivityRegistration("h1"))
	})

	t.Run("remove", func(t *testing.T) {
		f := setupTestFixture(t)
		reg := &countingRegistration{}
		f.data.AddListener("h1", &namedListener{}, reg)
		require.True(t, f.data.RemoveListener("h1"))
		require.False(t, f.data.HasConnectivityRegistration("h1"))
		require.Equal(t, int32(1), reg.unregistered.Load())
		require.Empty(t, f.data.Listeners())
		require.False(t, f.data.RemoveListener("h1"))
	})
}

func TestEventRegistrations(t *testing.T) {
	f := setupTestFixture(t)
	rec := &namedListener{}

	f.data.RegisterEvent("h1", rec, events.LoginComplete)
	f.data.RegisterEvent("h1", rec, events.LogoutComplete)
	notifiers := f.data.Notifiers()
	require.Len(t, notifiers, 1)
	require.Equal(t, []events.EventType{events.LoginComplete, events.LogoutComplete}, notifiers[0].Events())

	other := &namedListener{}
	f.data.RegisterEvent("h2", other, events.LogoutComplete)
	for _, n := range f.data.Notifiers() {
		n.Send(events.LoginComplete)
	}
	require.Equal(t, []events.EventType{events.LoginComplete}, rec.received)
	require.Empty(t, other.received)

	require.True(t, f.data.UnregisterAllEvents("h1"))
	require.False(t, f.data.UnregisterAllEvents("h1"))
	require.Len(t, f.data.Notifiers(), 1)
}

func TestRegistry(t *testing.T) {
	registry := sessiondata.NewRegistry()
	repo := repofake.NewFakeStoreRepo("shared")

	first, err := registry.Open(repo)
	require.NoError(t, err)
	second, err := registry.Open(repofake.NewFakeStoreRepo("shared"))
	require.NoError(t, err)
	require.Same(t, first, second)

	other, err := registry.Open(repofake.NewFakeStoreRepo("other"))
	require.NoError(t, err)
	require.NotSame(t, first, other)

	registry.Forget("shared")
	third, err := registry.Open(repo)
	require.NoError(t, err)
	require.NotSame(t, first, third)
}
