// Package storetest holds the behaviour every store.Repo implementation must share.
package storetest

import (
	"testing"

	"github.com/jrsteele09/go-sso-client/store"
	"github.com/stretchr/testify/require"
)

// RunRepoTests exercises a repo created fresh for each subtest.
func RunRepoTests(t *testing.T, newRepo func(t *testing.T) store.Repo) {
	t.Run("missing key is unset not an error", func(t *testing.T) {
		r := newRepo(t)
		v, ok, err := r.Get(store.KeyAuthState)
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, v)
	})

	t.Run("put and get", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.PutAll(map[string]string{
			store.KeyAuthState:      `{"scope":"openid"}`,
			store.KeyLogoutEndpoint: "https://idp.example.com/logout",
		}))

		v, ok, err := r.Get(store.KeyAuthState)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, `{"scope":"openid"}`, v)

		all, err := r.GetAll()
		require.NoError(t, err)
		require.Len(t, all, 2)
	})

	t.Run("put overwrites", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.PutAll(map[string]string{store.KeyInitOngoing: "true"}))
		require.NoError(t, r.PutAll(map[string]string{store.KeyInitOngoing: "false"}))
		v, _, err := r.Get(store.KeyInitOngoing)
		require.NoError(t, err)
		require.Equal(t, "false", v)
	})

	t.Run("delete", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.PutAll(map[string]string{store.KeyClaims: "{}", store.KeyNetworkAvailable: "true"}))
		require.NoError(t, r.Delete(store.KeyClaims, store.KeyPostAuthTarget))
		_, ok, err := r.Get(store.KeyClaims)
		require.NoError(t, err)
		require.False(t, ok)
		_, ok, err = r.Get(store.KeyNetworkAvailable)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, r.Delete())
	})

	t.Run("clear", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.PutAll(map[string]string{store.KeyClaims: "{}"}))
		require.NoError(t, r.Clear())
		all, err := r.GetAll()
		require.NoError(t, err)
		require.Empty(t, all)
		require.NoError(t, r.Clear())
	})

	t.Run("name is stable", func(t *testing.T) {
		r := newRepo(t)
		require.NotEmpty(t, r.Name())
		require.Equal(t, r.Name(), r.Name())
	})
}
