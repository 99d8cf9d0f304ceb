package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestToStringSlice(t *testing.T) {
	t.Run("single string", func(t *testing.T) {
		require.Equal(t, []string{"client"}, utils.ToStringSlice("client"))
	})

	t.Run("mixed slice skips non strings", func(t *testing.T) {
		require.Equal(t, []string{"a", "b"}, utils.ToStringSlice([]any{"a", 1, "b"}))
	})

	t.Run("unsupported type", func(t *testing.T) {
		require.Empty(t, utils.ToStringSlice(42))
	})
}

func TestPointers(t *testing.T) {
	require.Nil(t, utils.PtrOrNil(""))
	require.Equal(t, "x", utils.Value(utils.PtrOrNil("x")))
	require.Equal(t, "", utils.Value[string](nil))
	require.Equal(t, 3, *utils.Ptr(3))
}
