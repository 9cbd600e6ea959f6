package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/clock"
	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
	"marketfeed/pkg/exception"
)

type fakePublisher struct {
	mu         sync.Mutex
	ops        []model.OpsEvent
	heartbeats []model.Heartbeat
	order      []enum.Topic
}

func (f *fakePublisher) PublishOps(ev model.OpsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, ev)
	f.order = append(f.order, enum.TopicOpsEvent)
	return nil
}

func (f *fakePublisher) PublishHeartbeat(hb model.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, hb)
	f.order = append(f.order, enum.TopicHealthHeartbeat)
	return nil
}

func (f *fakePublisher) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.heartbeats)
}

func (f *fakePublisher) topics() []enum.Topic {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enum.Topic(nil), f.order...)
}

var testStart = time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC)

func TestMonitorHeartbeatsWhileRunning(t *testing.T) {
	pub := &fakePublisher{}
	clk := clock.NewManual(testStart)
	m := NewMonitor(pub, time.Second, clk)

	assert.Zero(t, clk.Tickers())
	require.NoError(t, m.Transition(enum.FeedStateIdle, enum.FeedStateRunning, map[string]string{"mode": "paper"}))
	assert.Equal(t, enum.FeedStateRunning, m.State())
	require.Equal(t, 1, clk.Tickers())

	for i := 1; i <= 3; i++ {
		clk.Advance(time.Second)
		want := i
		assert.Eventually(t, func() bool { return pub.heartbeatCount() == want }, time.Second, time.Millisecond)
	}

	require.NoError(t, m.Transition(enum.FeedStateRunning, enum.FeedStateCompleted, map[string]string{"cancelled": "true"}))
	assert.Zero(t, clk.Tickers())
	clk.Advance(10 * time.Second)

	topics := pub.topics()
	assert.Equal(t, enum.TopicOpsEvent, topics[0])
	assert.Equal(t, enum.TopicOpsEvent, topics[len(topics)-1], "no heartbeat after leaving running")
	assert.Equal(t, 3, pub.heartbeatCount())

	require.Len(t, pub.ops, 2)
	assert.Equal(t, enum.OpsKindStateChange, pub.ops[0].Kind)
	assert.Equal(t, "idle", pub.ops[0].Detail[DetailFrom])
	assert.Equal(t, "running", pub.ops[0].Detail[DetailTo])
	assert.Equal(t, "paper", pub.ops[0].Detail["mode"])
	assert.Equal(t, "completed", pub.ops[1].Detail[DetailTo])
	assert.Equal(t, "true", pub.ops[1].Detail["cancelled"])
	for _, hb := range pub.heartbeats {
		assert.Equal(t, enum.FeedStateRunning, hb.State)
	}
}

func TestMonitorRejectsInvalidTransition(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMonitor(pub, time.Second, clock.NewManual(testStart))

	testCases := []struct {
		from, to enum.FeedState
	}{
		{enum.FeedStateRunning, enum.FeedStateCompleted},
		{enum.FeedStateIdle, enum.FeedStateCompleted},
		{enum.FeedStateIdle, enum.FeedStateIdle},
	}
	for _, tc := range testCases {
		err := m.Transition(tc.from, tc.to, nil)
		assert.ErrorIs(t, err, exception.ErrInvalidState, "%s -> %s", tc.from, tc.to)
	}
	assert.Empty(t, pub.ops)

	require.NoError(t, m.Transition(enum.FeedStateIdle, enum.FeedStateRunning, nil))
	require.NoError(t, m.Transition(enum.FeedStateRunning, enum.FeedStateErrored, nil))
	assert.ErrorIs(t, m.Transition(enum.FeedStateErrored, enum.FeedStateRunning, nil), exception.ErrInvalidState)
}

func TestMonitorDefaultInterval(t *testing.T) {
	m := NewMonitor(&fakePublisher{}, 0, nil)
	assert.Equal(t, DefaultInterval, m.interval)
}
