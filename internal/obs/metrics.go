package obs

import (
	"sync/atomic"
	"time"

	"marketfeed/internal/model/enum"
)

const maxTopic = int(enum.TopicHealthHeartbeat)

// Metrics collects lightweight feed counters and latency stats. A nil *Metrics is a no-op.
type Metrics struct {
	published          [maxTopic + 1]uint64
	deliveries         uint64
	subscriberFailures uint64
	subscriberPanics   uint64
	anomalies          uint64
	runsCompleted      uint64
	runsCancelled      uint64
	runsErrored        uint64

	loadLatency     LatencyStats
	deliveryLatency LatencyStats
	runLatency      LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Published          map[enum.Topic]uint64
	Deliveries         uint64
	SubscriberFailures uint64
	SubscriberPanics   uint64
	Anomalies          uint64
	RunsCompleted      uint64
	RunsCancelled      uint64
	RunsErrored        uint64
	LoadLatency        LatencySnapshot
	DeliveryLatency    LatencySnapshot
	RunLatency         LatencySnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObservePublish counts one published event of topic and the callbacks it reached.
func (m *Metrics) ObservePublish(topic enum.Topic, deliveries int, d time.Duration) {
	if m == nil {
		return
	}
	if idx := int(topic); topic.IsAvailable() && idx < len(m.published) {
		atomic.AddUint64(&m.published[idx], 1)
	}
	atomic.AddUint64(&m.deliveries, uint64(deliveries))
	m.deliveryLatency.Observe(d)
}

// IncSubscriberFailure records a callback error; panicked marks a recovered panic.
func (m *Metrics) IncSubscriberFailure(panicked bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.subscriberFailures, 1)
	if panicked {
		atomic.AddUint64(&m.subscriberPanics, 1)
	}
}

// AddAnomalies records non-fatal data anomalies found while loading.
func (m *Metrics) AddAnomalies(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.anomalies, uint64(n))
}

// ObserveLoad measures the time spent loading all series of a session.
func (m *Metrics) ObserveLoad(d time.Duration) {
	if m == nil {
		return
	}
	m.loadLatency.Observe(d)
}

// ObserveRun records the outcome and duration of one run.
func (m *Metrics) ObserveRun(state enum.FeedState, cancelled bool, d time.Duration) {
	if m == nil {
		return
	}
	switch {
	case state == enum.FeedStateErrored:
		atomic.AddUint64(&m.runsErrored, 1)
	case cancelled:
		atomic.AddUint64(&m.runsCancelled, 1)
	default:
		atomic.AddUint64(&m.runsCompleted, 1)
	}
	m.runLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	published := make(map[enum.Topic]uint64)
	for i := range m.published {
		if v := atomic.LoadUint64(&m.published[i]); v > 0 {
			published[enum.Topic(i)] = v
		}
	}
	return Snapshot{
		Published:          published,
		Deliveries:         atomic.LoadUint64(&m.deliveries),
		SubscriberFailures: atomic.LoadUint64(&m.subscriberFailures),
		SubscriberPanics:   atomic.LoadUint64(&m.subscriberPanics),
		Anomalies:          atomic.LoadUint64(&m.anomalies),
		RunsCompleted:      atomic.LoadUint64(&m.runsCompleted),
		RunsCancelled:      atomic.LoadUint64(&m.runsCancelled),
		RunsErrored:        atomic.LoadUint64(&m.runsErrored),
		LoadLatency:        m.loadLatency.Snapshot(),
		DeliveryLatency:    m.deliveryLatency.Snapshot(),
		RunLatency:         m.runLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
