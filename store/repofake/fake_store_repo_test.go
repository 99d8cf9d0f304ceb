package repofake_test

import (
	"testing"

	"github.com/jrsteele09/go-sso-client/store"
	"github.com/jrsteele09/go-sso-client/store/repofake"
	"github.com/jrsteele09/go-sso-client/store/storetest"
)

func TestFakeStoreRepo(t *testing.T) {
	storetest.RunRepoTests(t, func(t *testing.T) store.Repo {
		return repofake.NewFakeStoreRepo(t.Name())
	})
}
