package queue

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseFIFO(t *testing.T, q Queue) {
	t.Helper()
	ctx := context.Background()

	_, err := q.Pop(ctx)
	assert.True(t, errors.Is(err, ErrEmpty), err)

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, []byte(m)))
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	_, err = q.Pop(ctx)
	assert.True(t, errors.Is(err, ErrEmpty), err)
}

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue()
	exerciseFIFO(t, q)
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_CopiesMessage(t *testing.T) {
	q := NewMemoryQueue()
	msg := []byte("job")
	require.NoError(t, q.Push(context.Background(), msg))
	msg[0] = 'x'
	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job", string(got))
}

func TestMemoryQueue_CancelledContext(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestRedisQueue_FIFO runs against a live server when ASSAY_TEST_REDIS_ADDR
// is set, e.g. ASSAY_TEST_REDIS_ADDR=localhost:6379.
func TestRedisQueue_FIFO(t *testing.T) {
	addr := os.Getenv("ASSAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ASSAY_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	q, err := NewRedisQueue(ctx, RedisOptions{Addr: addr, DB: 1, Key: "assay-test:" + uuid.NewString()})
	require.NoError(t, err)
	defer q.Close()

	exerciseFIFO(t, q)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRedisQueue_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRedisQueue(ctx, RedisOptions{Addr: "127.0.0.1:1", Key: "jobs:default"})
	assert.Error(t, err)
}
