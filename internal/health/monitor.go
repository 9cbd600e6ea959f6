package health

import (
	"sync"
	"sync/atomic"
	"time"

	"marketfeed/internal/clock"
	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
	"marketfeed/pkg/exception"
)

const DefaultInterval = time.Second

const (
	DetailFrom = "from"
	DetailTo   = "to"
)

// Publisher is the part of bus.Publisher the monitor needs.
type Publisher interface {
	PublishOps(model.OpsEvent) error
	PublishHeartbeat(model.Heartbeat) error
}

var transitions = map[enum.FeedState][]enum.FeedState{
	enum.FeedStateIdle:    {enum.FeedStateRunning},
	enum.FeedStateRunning: {enum.FeedStateCompleted, enum.FeedStateErrored},
}

// Monitor owns the feed state. Heartbeats run only while the state is running.
// State may be read from inside subscriber callbacks.
type Monitor struct {
	pub      Publisher
	interval time.Duration
	clock    clock.Clock
	state    atomic.Uint32

	// mu serializes transitions.
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewMonitor starts in idle. A non-positive interval selects DefaultInterval.
func NewMonitor(pub Publisher, interval time.Duration, clk clock.Clock) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Monitor{pub: pub, interval: interval, clock: clk}
}

func (m *Monitor) State() enum.FeedState {
	return enum.FeedState(m.state.Load())
}

// Transition moves from -> to and publishes a state_change event carrying detail.
// Leaving running stops the heartbeat before the event is published; entering
// running starts it after.
func (m *Monitor) Transition(from, to enum.FeedState, detail map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.State(); cur != from {
		return errors.Wrapf(exception.ErrInvalidState, "transition %s -> %s from %s", from, to, cur)
	}
	if !allowed(from, to) {
		return errors.Wrapf(exception.ErrInvalidState, "transition %s -> %s", from, to)
	}

	if from == enum.FeedStateRunning {
		m.stopHeartbeat()
	}
	m.state.Store(uint32(to))

	d := make(map[string]string, len(detail)+2)
	for k, v := range detail {
		d[k] = v
	}
	d[DetailFrom] = from.String()
	d[DetailTo] = to.String()
	err := m.pub.PublishOps(model.OpsEvent{
		Time:    m.clock.Now(),
		Kind:    enum.OpsKindStateChange,
		Message: "state " + from.String() + " -> " + to.String(),
		Detail:  d,
	})

	if to == enum.FeedStateRunning {
		m.startHeartbeat()
	}
	return err
}

func allowed(from, to enum.FeedState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (m *Monitor) startHeartbeat() {
	ticker := m.clock.NewTicker(m.interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop, m.done = stop, done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				select {
				case <-stop:
					return
				default:
				}
				_ = m.pub.PublishHeartbeat(model.Heartbeat{
					Time:  m.clock.Now(),
					State: enum.FeedStateRunning,
				})
			}
		}
	}()
}

// stopHeartbeat returns once the heartbeat goroutine has exited.
func (m *Monitor) stopHeartbeat() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop, m.done = nil, nil
}
