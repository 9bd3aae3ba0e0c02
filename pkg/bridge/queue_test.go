package bridge

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(Message{Text: strconv.Itoa(i)}))
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		msg, ok := q.Dequeue(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, strconv.Itoa(i), msg.Text)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueDropsNewestWhenFull(t *testing.T) {
	q := NewQueue(2)
	require.True(t, q.Enqueue(Message{Text: "first"}))
	require.True(t, q.Enqueue(Message{Text: "second"}))

	assert.False(t, q.Enqueue(Message{Text: "overflow"}))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())

	// The waiting messages were not evicted.
	msg, ok := q.Dequeue(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "first", msg.Text)
	msg, ok = q.Dequeue(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "second", msg.Text)
}

func TestQueueDequeueTimesOut(t *testing.T) {
	q := NewQueue(1)
	start := time.Now()
	_, ok := q.Dequeue(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueueDequeueObservesCancellation(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := q.Dequeue(ctx, time.Minute)
		assert.False(t, ok)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not observe context cancellation")
	}
}

func TestQueueCapacity(t *testing.T) {
	q := NewQueue(7)
	assert.Equal(t, 7, q.Capacity())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(0), q.Dropped())
}
