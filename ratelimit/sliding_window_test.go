package ratelimit

import (
	"context"
	"testing"

	"github.com/mpraski/admission/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindow(t *testing.T) {
	var (
		ctx = context.Background()
		l   = New(store.NewMemoryStore())
	)

	for i, now := range []Millis{0, 100, 200} {
		res, err := l.SlidingWindow(ctx, "client", 3, 1000, now)
		require.NoError(t, err)
		assert.Equal(t, Allow, res.State)
		assert.Equal(t, float64(i+1), res.Metric)
		assert.Equal(t, i == 0, res.NewWindow)
	}

	res, err := l.SlidingWindow(ctx, "client", 3, 1000, 300)
	require.NoError(t, err)
	assert.Equal(t, Deny, res.State)
	assert.Equal(t, float64(3), res.Metric)
	assert.False(t, res.NewWindow)

	res, err = l.SlidingWindow(ctx, "client", 3, 1000, 1001)
	require.NoError(t, err)
	assert.Equal(t, Allow, res.State)
	assert.Equal(t, float64(3), res.Metric)
	assert.False(t, res.NewWindow)
}

func TestSlidingWindow_BoundaryIsExclusive(t *testing.T) {
	var (
		ctx = context.Background()
		l   = New(store.NewMemoryStore())
	)

	_, err := l.SlidingWindow(ctx, "client", 2, 1000, 0)
	require.NoError(t, err)

	_, err = l.SlidingWindow(ctx, "client", 2, 1000, 500)
	require.NoError(t, err)

	// 1000 - 0 >= window drops the first request
	res, err := l.SlidingWindow(ctx, "client", 2, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, Allow, res.State)
	assert.Equal(t, float64(2), res.Metric)
}

func TestSlidingWindow_DenialPersistsTrimmedLog(t *testing.T) {
	var (
		ctx = context.Background()
		s   = store.NewMemoryStore()
		l   = New(s)
	)

	for _, now := range []Millis{0, 600, 700} {
		_, err := l.SlidingWindow(ctx, "client", 2, 1000, now)
		require.NoError(t, err)
	}

	v, _, _ := s.Get(ctx, "client", 700)
	assert.Equal(t, Timestamps{0, 600}, v)

	res, err := l.SlidingWindow(ctx, "client", 1, 1000, 1200)
	require.NoError(t, err)
	require.Equal(t, Deny, res.State)
	assert.Equal(t, float64(1), res.Metric)

	v, _, _ = s.Get(ctx, "client", 1200)
	assert.Equal(t, Timestamps{600}, v)
}

func TestSlidingWindow_DenialRearmsExpiry(t *testing.T) {
	var (
		ctx = context.Background()
		s   = store.NewMemoryStore()
		l   = New(s)
	)

	res, err := l.SlidingWindow(ctx, "client", 1, 1000, 0)
	require.NoError(t, err)
	require.Equal(t, Allow, res.State)

	res, err = l.SlidingWindow(ctx, "client", 1, 1000, 500)
	require.NoError(t, err)
	require.Equal(t, Deny, res.State)

	// expiry now counts from the denied request at 500
	v, ok, err := s.Get(ctx, "client", 1200)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Timestamps{0}, v)

	res, err = l.SlidingWindow(ctx, "client", 1, 1000, 1200)
	require.NoError(t, err)
	assert.Equal(t, Allow, res.State)
	assert.Equal(t, float64(1), res.Metric)
	assert.False(t, res.NewWindow)

	_, ok, err = s.Get(ctx, "client", 2200)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlidingWindow_StateMismatch(t *testing.T) {
	var (
		ctx = context.Background()
		l   = New(store.NewMemoryStore())
	)

	_, err := l.FixedWindow(ctx, "shared", 3, 1000, 0)
	require.NoError(t, err)

	_, err = l.SlidingWindow(ctx, "shared", 3, 1000, 1)
	assert.ErrorIs(t, err, ErrStateMismatch)
}
