package dispatch_test

import (
	"sync"
	"testing"

	"github.com/jrsteele09/go-sso-client/dispatch"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	t.Run("runs tasks in order", func(t *testing.T) {
		q := dispatch.NewQueue()
		defer q.Close()

		var got []int
		for i := 0; i < 100; i++ {
			i := i
			q.Post(func() { got = append(got, i) })
		}
		q.Flush()
		require.Len(t, got, 100)
		for i, v := range got {
			require.Equal(t, i, v)
		}
	})

	t.Run("tasks can post tasks", func(t *testing.T) {
		q := dispatch.NewQueue()
		defer q.Close()

		var got []string
		q.Post(func() {
			got = append(got, "outer")
			q.Post(func() { got = append(got, "inner") })
		})
		q.Flush()
		q.Flush()
		require.Equal(t, []string{"outer", "inner"}, got)
	})

	t.Run("single consumer", func(t *testing.T) {
		q := dispatch.NewQueue()
		defer q.Close()

		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					q.Post(func() { counter++ })
				}
			}()
		}
		wg.Wait()
		q.Flush()
		require.Equal(t, 1000, counter)
	})

	t.Run("recovers from panics", func(t *testing.T) {
		q := dispatch.NewQueue()
		defer q.Close()

		ran := false
		q.Post(func() { panic("boom") })
		q.Post(func() { ran = true })
		q.Flush()
		require.True(t, ran)
	})

	t.Run("close drains and drops later posts", func(t *testing.T) {
		q := dispatch.NewQueue()
		ran := 0
		q.Post(func() { ran++ })
		q.Close()
		require.Equal(t, 1, ran)

		q.Post(func() { ran++ })
		q.Flush()
		q.Close()
		require.Equal(t, 1, ran)
	})
}

func TestImmediate(t *testing.T) {
	ran := false
	dispatch.Immediate{}.Post(func() { ran = true })
	require.True(t, ran)
}
