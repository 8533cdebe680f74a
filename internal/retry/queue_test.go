package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebot/internal/domain"
)

func TestQueuesFIFOAndBound(t *testing.T) {
	ctx := context.Background()
	q := NewQueues(2)

	require.NoError(t, q.Push(ctx, "alpha", "l1"))
	require.NoError(t, q.Push(ctx, "alpha", "l2"))
	assert.ErrorIs(t, q.Push(ctx, "alpha", "l3"), domain.ErrQueueFull)

	id, ok, err := q.Poll(ctx, "alpha")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "l1", id)

	id, ok, err = q.Take(ctx, "alpha", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "l2", id)

	_, ok, err = q.Take(ctx, "alpha", 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueuesTakeWakesOnPush(t *testing.T) {
	ctx := context.Background()
	q := NewQueues(2)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Push(ctx, "beta", "l9")
	}()
	id, ok, err := q.Take(ctx, "beta", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "l9", id)
}
