package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Bounds(t *testing.T) {
	t.Parallel()
	b := NewBackoff(100*time.Millisecond, time.Second, 2)

	for range 20 {
		d := b.Next()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond, "cap plus jitter")
	}
	assert.Equal(t, 20, b.Attempts())
}

func TestBackoff_Grows(t *testing.T) {
	t.Parallel()
	b := NewBackoff(100*time.Millisecond, 10*time.Second, 2)

	first := b.Next()
	b.Next()
	third := b.Next()
	assert.Greater(t, third, first, "third delay starts at 4x the minimum")
}

func TestBackoff_Reset(t *testing.T) {
	t.Parallel()
	b := NewBackoff(100*time.Millisecond, 10*time.Second, 3)
	for range 5 {
		b.Next()
	}

	b.Reset()
	assert.Zero(t, b.Attempts())
	assert.LessOrEqual(t, b.Next(), 120*time.Millisecond)
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackoff_WaitCancelled(t *testing.T) {
	t.Parallel()
	b := NewBackoff(time.Hour, time.Hour, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, err := b.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Greater(t, d, time.Duration(0))
}
