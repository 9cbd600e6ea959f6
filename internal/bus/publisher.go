package bus

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"marketfeed/internal/clock"
	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
	"marketfeed/internal/obs"
	"marketfeed/pkg/exception"
)

const (
	DetailRunID          = "run_id"
	DetailSubscriptionID = "subscription_id"
	DetailTopic          = "topic"
	DetailSequence       = "sequence"
	DetailError          = "error"
	DetailReason         = "reason"

	ReasonCallbackError = "callback_error"
	ReasonPanic         = "panic"
)

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock sets the clock that stamps events published without a time.
func WithClock(c clock.Clock) Option {
	return func(p *Publisher) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithMetrics records publish counts and delivery latency.
func WithMetrics(m *obs.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// Publisher assigns bar.update sequence numbers and delivers each event to every
// matching subscriber, in registration order, before the next event starts.
type Publisher struct {
	clock   clock.Clock
	metrics *obs.Metrics

	subsMu sync.RWMutex
	subs   []*Subscription
	nextID uint64

	// mu serializes delivery and guards the session fields.
	mu      sync.Mutex
	session model.Date
	runID   string
	primary string
	seq     uint64
	lastSeq atomic.Uint64
}

func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{clock: clock.Real{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers cb. symbols filters bar.update events by primary symbol;
// ops and heartbeat events reach every subscription.
func (p *Publisher) Subscribe(symbols []string, cb Callback) (*Subscription, error) {
	if cb == nil {
		return nil, exception.ErrNilCallback
	}
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	p.nextID++
	sub := &Subscription{
		id:      "sub-" + strconv.FormatUint(p.nextID, 10),
		symbols: append([]string(nil), symbols...),
		cb:      cb,
	}
	p.subs = append(p.subs, sub)
	return sub, nil
}

// Unsubscribe removes sub. It reports whether sub was registered. An event being
// delivered while Unsubscribe runs may still reach sub.
func (p *Publisher) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for i, s := range p.subs {
		if s == sub {
			p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribers returns the number of registered subscriptions.
func (p *Publisher) Subscribers() int {
	p.subsMu.RLock()
	defer p.subsMu.RUnlock()
	return len(p.subs)
}

// BeginSession resets the bar.update sequence and primary symbol for a new run of
// date. runID is added to the detail of every ops event published until the next
// BeginSession.
func (p *Publisher) BeginSession(date model.Date, runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = date
	p.runID = runID
	p.primary = ""
	p.seq = 0
	p.lastSeq.Store(0)
}

// LastSequence returns the sequence of the latest bar.update of the session.
func (p *Publisher) LastSequence() uint64 {
	return p.lastSeq.Load()
}

// PublishSnapshot numbers snap and delivers it. The returned snapshot carries the
// assigned sequence. A subscriber failure does not stop delivery; it is reported
// as a subscriber_error ops event and as an ErrSubscriberFailure result.
//
// A session has one primary symbol, fixed by its first snapshot, so a subscriber
// filtered by symbol sees either the whole 1..N range or nothing. A snapshot for
// another primary fails with ErrMixedPrimary and is not numbered.
func (p *Publisher) PublishSnapshot(snap model.AlignedSnapshot) (model.AlignedSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.primary == "":
		p.primary = snap.Primary.Symbol
	case p.primary != snap.Primary.Symbol:
		return snap, errors.Wrapf(exception.ErrMixedPrimary, "%s in a %s session", snap.Primary.Symbol, p.primary)
	}
	p.seq++
	p.lastSeq.Store(p.seq)
	snap.Sequence = p.seq
	if snap.SessionDate.IsZero() {
		snap.SessionDate = p.session
	}
	return snap, p.publish(model.Event{Topic: enum.TopicBarUpdate, Snapshot: &snap})
}

// PublishOps stamps and delivers an ops event to every subscriber.
func (p *Publisher) PublishOps(ev model.OpsEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev = p.stampOps(ev)
	return p.publish(model.Event{Topic: enum.TopicOpsEvent, Ops: &ev})
}

// PublishHeartbeat delivers a heartbeat carrying the latest bar.update sequence,
// overall and per primary symbol.
func (p *Publisher) PublishHeartbeat(hb model.Heartbeat) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if hb.Time.IsZero() {
		hb.Time = p.clock.Now()
	}
	hb.Sequence = p.seq
	if p.primary != "" {
		hb.SeqPerSymbol = map[string]uint64{p.primary: p.seq}
	}
	return p.publish(model.Event{Topic: enum.TopicHealthHeartbeat, Heartbeat: &hb})
}

type failure struct {
	sub      *Subscription
	err      error
	panicked bool
}

// publish must be called with mu held.
func (p *Publisher) publish(ev model.Event) error {
	failures := p.deliver(ev)
	if len(failures) == 0 {
		return nil
	}

	for _, f := range failures {
		report := p.stampOps(model.OpsEvent{
			Kind:    enum.OpsKindSubscriberError,
			Message: fmt.Sprintf("subscriber %s failed on %s", f.sub.ID(), ev.Topic),
			Detail:  failureDetail(f, ev),
		})
		// A failure while reporting a failure is only logged.
		for _, again := range p.deliver(model.Event{Topic: enum.TopicOpsEvent, Ops: &report}) {
			logs.Errorf("subscriber %s failed on subscriber_error, err: %+v", again.sub.ID(), again.err)
		}
	}
	return errors.Wrapf(exception.ErrSubscriberFailure, "%d subscriber(s) failed on %s", len(failures), ev.Topic)
}

func (p *Publisher) deliver(ev model.Event) []failure {
	start := time.Now()
	p.subsMu.RLock()
	subs := append([]*Subscription(nil), p.subs...)
	p.subsMu.RUnlock()

	var (
		failures  []failure
		delivered int
	)
	for _, sub := range subs {
		if !sub.matches(ev) {
			continue
		}
		delivered++
		panicked, err := invoke(sub, ev)
		if err == nil {
			continue
		}
		logs.Errorf("subscriber %s failed on %s, seq: %d, err: %+v", sub.ID(), ev.Topic, ev.Sequence(), err)
		p.metrics.IncSubscriberFailure(panicked)
		failures = append(failures, failure{sub: sub, err: err, panicked: panicked})
	}
	p.metrics.ObservePublish(ev.Topic, delivered, time.Since(start))
	return failures
}

func invoke(sub *Subscription, ev model.Event) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = errors.Wrapf(exception.ErrSubscriberFailure, "panic: %v", r)
		}
	}()
	return false, sub.cb(ev)
}

func (p *Publisher) stampOps(ev model.OpsEvent) model.OpsEvent {
	if ev.Time.IsZero() {
		ev.Time = p.clock.Now()
	}
	if p.runID == "" {
		return ev
	}
	detail := make(map[string]string, len(ev.Detail)+1)
	for k, v := range ev.Detail {
		detail[k] = v
	}
	if _, ok := detail[DetailRunID]; !ok {
		detail[DetailRunID] = p.runID
	}
	ev.Detail = detail
	return ev
}

func failureDetail(f failure, ev model.Event) map[string]string {
	reason := ReasonCallbackError
	if f.panicked {
		reason = ReasonPanic
	}
	detail := map[string]string{
		DetailSubscriptionID: f.sub.ID(),
		DetailTopic:          ev.Topic.String(),
		DetailError:          f.err.Error(),
		DetailReason:         reason,
	}
	if seq := ev.Sequence(); seq > 0 {
		detail[DetailSequence] = strconv.FormatUint(seq, 10)
	}
	return detail
}
