package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mpraski/admission/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindow(t *testing.T) {
	var (
		ctx = context.Background()
		l   = New(store.NewMemoryStore())
	)

	for i, now := range []Millis{0, 1, 2, 3, 4} {
		res, err := l.FixedWindow(ctx, "client", 5, 1000, now)
		require.NoError(t, err)
		assert.Equal(t, Allow, res.State)
		assert.Equal(t, float64(i+1), res.Metric)
		assert.Equal(t, i == 0, res.NewWindow)
	}

	res, err := l.FixedWindow(ctx, "client", 5, 1000, 5)
	require.NoError(t, err)
	assert.Equal(t, Deny, res.State)
	assert.Equal(t, float64(5), res.Metric)

	res, err = l.FixedWindow(ctx, "client", 5, 1000, 1001)
	require.NoError(t, err)
	assert.Equal(t, Allow, res.State)
	assert.Equal(t, float64(1), res.Metric)
	assert.True(t, res.NewWindow)
}

func TestFixedWindow_WindowDoesNotSlide(t *testing.T) {
	var (
		ctx = context.Background()
		l   = New(store.NewMemoryStore())
	)

	_, err := l.FixedWindow(ctx, "client", 2, 1000, 0)
	require.NoError(t, err)

	_, err = l.FixedWindow(ctx, "client", 2, 1000, 900)
	require.NoError(t, err)

	// the window opened at 0 and ends at 1000 regardless of later requests
	res, err := l.FixedWindow(ctx, "client", 2, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, Allow, res.State)
	assert.True(t, res.NewWindow)
}

func TestFixedWindow_FractionalLimit(t *testing.T) {
	var (
		ctx = context.Background()
		l   = New(store.NewMemoryStore())
	)

	var allowed int
	for now := Millis(0); now < 10; now++ {
		res, err := l.FixedWindow(ctx, "client", 2.5, 1000, now)
		require.NoError(t, err)

		if res.State == Allow {
			allowed++
		}
	}

	assert.Equal(t, 3, allowed)
}

func TestFixedWindow_DenialLeavesStateUntouched(t *testing.T) {
	var (
		ctx = context.Background()
		s   = store.NewMemoryStore()
		l   = New(s)
	)

	for i := 0; i < 3; i++ {
		_, err := l.FixedWindow(ctx, "client", 3, 1000, 0)
		require.NoError(t, err)
	}

	before, _, _ := s.Get(ctx, "client", 10)

	res, err := l.FixedWindow(ctx, "client", 3, 1000, 10)
	require.NoError(t, err)
	require.Equal(t, Deny, res.State)

	after, _, _ := s.Get(ctx, "client", 10)
	assert.Equal(t, before, after)
}

func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	var (
		ctx = context.Background()
		l   = New(store.NewMemoryStore())
	)

	_, err := l.FixedWindow(ctx, "a", 1, 1000, 0)
	require.NoError(t, err)

	res, err := l.FixedWindow(ctx, "b", 1, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, Allow, res.State)

	res, err = l.FixedWindow(ctx, "a", 1, 1000, 1)
	require.NoError(t, err)
	assert.Equal(t, Deny, res.State)
}

func TestFixedWindow_Concurrent(t *testing.T) {
	var (
		ctx     = context.Background()
		l       = New(store.NewMemoryStore())
		wg      sync.WaitGroup
		allowed int64
	)

	wg.Add(200)

	for i := 0; i < 200; i++ {
		go func() {
			defer wg.Done()

			res, err := l.FixedWindow(ctx, "client", 10, 1000, 0)
			if err == nil && res.State == Allow {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(10), allowed)
}
