package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDropOldest(t *testing.T) {
	q := newEventQueue(2, OverflowDropOldest)
	for _, rec := range []string{"a", "b", "c"} {
		require.True(t, q.push([]byte(rec)))
	}
	assert.Equal(t, 2, q.len())
	assert.Equal(t, uint64(1), q.droppedCount())

	rec, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "b", string(rec))
	rec, _ = q.pop()
	assert.Equal(t, "c", string(rec))
}

func TestQueueDisconnectWhenFull(t *testing.T) {
	q := newEventQueue(1, OverflowDisconnect)
	assert.True(t, q.push([]byte("a")))
	assert.False(t, q.push([]byte("b")))
}

func TestQueueBlockWaitsForSpace(t *testing.T) {
	q := newEventQueue(1, OverflowBlock)
	require.True(t, q.push([]byte("a")))

	pushed := make(chan bool, 1)
	go func() { pushed <- q.push([]byte("b")) }()

	select {
	case <-pushed:
		t.Fatal("push on a full blocking queue returned early")
	case <-time.After(20 * time.Millisecond):
	}

	rec, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "a", string(rec))
	assert.True(t, <-pushed)
	rec, _ = q.pop()
	assert.Equal(t, "b", string(rec))
}

func TestQueueCloseDrainsThenEnds(t *testing.T) {
	q := newEventQueue(4, OverflowBlock)
	require.True(t, q.push([]byte("a")))
	q.close()
	q.close()
	assert.False(t, q.push([]byte("b")))

	rec, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "a", string(rec))
	_, ok = q.pop()
	assert.False(t, ok)
}

func TestQueueDiscardUnblocksPush(t *testing.T) {
	q := newEventQueue(1, OverflowBlock)
	require.True(t, q.push([]byte("a")))

	pushed := make(chan bool, 1)
	go func() { pushed <- q.push([]byte("b")) }()
	time.Sleep(10 * time.Millisecond)
	q.discard()

	assert.False(t, <-pushed)
	assert.Zero(t, q.len())
	_, ok := q.pop()
	assert.False(t, ok)
}

func TestParseOverflowPolicy(t *testing.T) {
	for _, p := range []OverflowPolicy{OverflowBlock, OverflowDropOldest, OverflowDisconnect} {
		got, ok := ParseOverflowPolicy(p.String())
		require.True(t, ok)
		assert.Equal(t, p, got)
		assert.True(t, p.IsAvailable())
	}
	_, ok := ParseOverflowPolicy("unknown")
	assert.False(t, ok)
	assert.False(t, OverflowPolicy(0).IsAvailable())
}
