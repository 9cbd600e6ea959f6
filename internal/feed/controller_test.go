package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/barsource"
	"marketfeed/internal/bus"
	"marketfeed/internal/clock"
	"marketfeed/internal/config"
	"marketfeed/internal/health"
	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
	"marketfeed/internal/recorder"
	"marketfeed/internal/testutil"
	"marketfeed/pkg/exception"
)

var sessionDate = model.NewDate(2024, time.January, 3)

type collector struct {
	mu     sync.Mutex
	events []model.Event
	onBar  func(model.Event)
}

func (c *collector) callback(ev model.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	onBar := c.onBar
	c.mu.Unlock()
	if onBar != nil && ev.Topic == enum.TopicBarUpdate {
		onBar(ev)
	}
	return nil
}

func (c *collector) all() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Event(nil), c.events...)
}

func (c *collector) topic(topic enum.Topic) []model.Event {
	var out []model.Event
	for _, ev := range c.all() {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

func (c *collector) opsWithReason(reason string) []model.OpsEvent {
	var out []model.OpsEvent
	for _, ev := range c.topic(enum.TopicOpsEvent) {
		if ev.Ops.Reason() == reason {
			out = append(out, *ev.Ops)
		}
	}
	return out
}

func (c *collector) states() []string {
	var out []string
	for _, ev := range c.topic(enum.TopicOpsEvent) {
		if ev.Ops.Kind == enum.OpsKindStateChange && ev.Ops.Detail[health.DetailTo] != "" {
			out = append(out, ev.Ops.Detail[health.DetailTo])
		}
	}
	return out
}

// vixBuckets is 40 bars that start two bars after the open and skip odd marks.
func vixBuckets() []int {
	idx := []int{2, 3}
	for i := 4; i <= 76; i += 2 {
		idx = append(idx, i)
	}
	return append(idx, 77)
}

type fixture struct {
	settings config.Settings
	mem      *barsource.Memory
	clock    *clock.Manual
	lookup   map[string]string
	fetches  atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.Session(t, 2024, time.January, 3)
	mem := barsource.NewMemory()
	mem.Set("SPY", testutil.SessionBars("SPY", s, 470))
	mem.Set("VIX", testutil.SessionBars("VIX", s, 13, vixBuckets()...))
	return &fixture{
		settings: config.Settings{
			PrimarySymbols: []string{"SPY"},
			ContextSymbols: []string{"VIX"},
		},
		mem:    mem,
		clock:  clock.NewManual(s.Start),
		lookup: map[string]string{},
	}
}

func (f *fixture) controller(t *testing.T) (*Controller, *collector) {
	t.Helper()
	src := barsource.SourceFunc(func(ctx context.Context, symbol string, s model.Session) ([]model.Bar, error) {
		f.fetches.Add(1)
		return f.mem.Fetch(ctx, symbol, s)
	})
	ctrl, err := New(f.settings, Deps{
		Calendar: testutil.Calendar(t),
		Source:   src,
		Clock:    f.clock,
		Lookup: func(key string) (string, bool) {
			v, ok := f.lookup[key]
			return v, ok
		},
		RunID: func() string { return "run-test" },
	})
	require.NoError(t, err)
	col := &collector{}
	_, err = ctrl.Subscribe(nil, col.callback)
	require.NoError(t, err)
	return ctrl, col
}

func waitDone(t *testing.T, ctrl *Controller) {
	t.Helper()
	select {
	case <-ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestHistoricalSessionReplay(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)
	s := testutil.Session(t, 2024, time.January, 3)

	require.NoError(t, ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical))
	assert.Equal(t, enum.FeedStateCompleted, ctrl.State())

	bars := col.topic(enum.TopicBarUpdate)
	require.Len(t, bars, testutil.BucketsPerSession)

	vix := testutil.SessionBars("VIX", s, 13, vixBuckets()...)
	require.Len(t, vix, 40)
	var lastVIX time.Time
	for i, ev := range bars {
		snap := ev.Snapshot
		assert.Equal(t, uint64(i+1), snap.Sequence)
		assert.Equal(t, sessionDate, snap.SessionDate)
		assert.True(t, s.Contains(snap.Primary.Time))
		assert.Equal(t, testutil.Bucket(s, i), snap.Primary.Time)

		got, ok := snap.Context.Get("VIX")
		if snap.Primary.Time.Before(vix[0].Time) {
			assert.False(t, ok, "bar %d precedes the first VIX bar", i)
			assert.Equal(t, model.ContextBar{Symbol: "VIX"}, snap.Context[0])
			continue
		}
		require.True(t, ok, "bar %d", i)
		var want model.Bar
		for _, v := range vix {
			if !v.Time.After(snap.Primary.Time) {
				want = v
			}
		}
		assert.Equal(t, want, got, "bar %d", i)
		assert.False(t, got.Time.Before(lastVIX), "alignment never moves back")
		lastVIX = got.Time
	}

	assert.Equal(t, []string{"running", "completed"}, col.states())
	gaps := col.opsWithReason(string(barsource.AnomalyGap))
	require.Len(t, gaps, 1)
	assert.Equal(t, "VIX", gaps[0].Detail[DetailSymbol])
	assert.Equal(t, "38", gaps[0].Detail[DetailCount])
	assert.Equal(t, "false", gaps[0].Detail[DetailFatal])

	last := col.topic(enum.TopicOpsEvent)
	final := last[len(last)-1].Ops
	assert.Equal(t, "false", final.Detail[DetailCancelled])
	assert.Equal(t, "78", final.Detail[DetailPublished])
	assert.Equal(t, "run-test", final.Detail[bus.DetailRunID])

	res := ctrl.Result()
	assert.Equal(t, uint64(78), res.Published)
	assert.False(t, res.Cancelled)
	assert.NoError(t, res.Err)
	assert.Equal(t, "run-test", res.RunID)

	m := ctrl.Metrics()
	assert.Equal(t, uint64(78), m.Published[enum.TopicBarUpdate])
	assert.Equal(t, uint64(1), m.RunsCompleted)
	assert.Equal(t, uint64(38), m.Anomalies)
}

func TestStartAgainIsInvalidState(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)
	require.NoError(t, ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical))
	before := len(col.all())
	fetches := f.fetches.Load()

	err := ctrl.Start(t.Context(), sessionDate, enum.ModeHistorical)
	assert.ErrorIs(t, err, exception.ErrInvalidState)
	assert.Len(t, col.all(), before)
	assert.Equal(t, fetches, f.fetches.Load())
	assert.Equal(t, enum.FeedStateCompleted, ctrl.State())
}

func TestStartWhileRunningIsInvalidState(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)
	require.NoError(t, ctrl.Start(t.Context(), sessionDate, enum.ModePaper))
	assert.Eventually(t, func() bool { return len(col.opsWithReason(ReasonDisabled)) == 1 }, time.Second, time.Millisecond)
	before := len(col.all())

	assert.ErrorIs(t, ctrl.Start(t.Context(), sessionDate, enum.ModeHistorical), exception.ErrInvalidState)
	assert.Len(t, col.all(), before)
	assert.Equal(t, enum.FeedStateRunning, ctrl.State())

	require.NoError(t, ctrl.Stop())
	waitDone(t, ctrl)
}

func TestStartOnHolidayFailsBeforeLoad(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)

	err := ctrl.Start(t.Context(), model.NewDate(2024, time.January, 1), enum.ModeHistorical)
	assert.ErrorIs(t, err, exception.ErrNoTradingSession)
	assert.Zero(t, f.fetches.Load())
	assert.Empty(t, col.all())
	assert.Equal(t, enum.FeedStateIdle, ctrl.State())

	require.NoError(t, ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical), "a failed start leaves the controller usable")
}

func TestStartRejectsUnsupportedMode(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)
	assert.ErrorIs(t, ctrl.Start(t.Context(), sessionDate, enum.Mode(0)), exception.ErrUnsupportedMode)
	assert.Empty(t, col.all())
}

func TestStartRejectsInvalidSettings(t *testing.T) {
	f := newFixture(t)
	f.settings.PrimarySymbols = nil
	ctrl, col := f.controller(t)

	err := ctrl.Start(t.Context(), sessionDate, enum.ModeHistorical)
	assert.ErrorIs(t, err, exception.ErrInvalidConfig)
	assert.Equal(t, enum.FeedStateIdle, ctrl.State())
	assert.Zero(t, f.fetches.Load())

	ops := col.topic(enum.TopicOpsEvent)
	require.Len(t, ops, 1)
	assert.Equal(t, enum.OpsKindConfigError, ops[0].Ops.Kind)
	assert.ErrorIs(t, ctrl.Start(t.Context(), sessionDate, enum.ModeHistorical), exception.ErrInvalidConfig)
}

func TestPaperMissingCredentials(t *testing.T) {
	f := newFixture(t)
	f.settings.Live = config.Live{Enabled: true, Provider: "polygon", EnvKeys: []string{"POLYGON_API_KEY"}}
	f.settings.HeartbeatInterval = config.Duration(time.Second)
	ctrl, col := f.controller(t)

	require.NoError(t, ctrl.Start(t.Context(), sessionDate, enum.ModePaper))
	assert.Eventually(t, func() bool { return len(col.opsWithReason(ReasonMissingCredentials)) == 1 }, time.Second, time.Millisecond)

	f.clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return len(col.topic(enum.TopicHealthHeartbeat)) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, enum.FeedStateRunning, ctrl.State())

	require.NoError(t, ctrl.Stop())
	waitDone(t, ctrl)

	missing := col.opsWithReason(ReasonMissingCredentials)
	require.Len(t, missing, 1)
	assert.Equal(t, "POLYGON_API_KEY", missing[0].Detail[DetailMissing])
	assert.Equal(t, enum.OpsKindConfigError, missing[0].Kind)
	assert.Equal(t, []string{"running", "completed"}, col.states())
	assert.Empty(t, col.topic(enum.TopicBarUpdate))
	assert.Zero(t, f.fetches.Load())
	assert.True(t, ctrl.Result().Cancelled)
	assert.NoError(t, ctrl.Result().Err)

	heartbeats := len(col.topic(enum.TopicHealthHeartbeat))
	f.clock.Advance(10 * time.Second)
	assert.Len(t, col.topic(enum.TopicHealthHeartbeat), heartbeats, "no heartbeat after leaving running")
}

func TestStubReadiness(t *testing.T) {
	testCases := []struct {
		name   string
		mode   enum.Mode
		live   config.Live
		env    map[string]string
		reason string
	}{
		{name: "disabled", mode: enum.ModePaper, reason: ReasonDisabled},
		{
			name:   "missing",
			mode:   enum.ModeLive,
			live:   config.Live{Enabled: true, Provider: "alpaca", EnvKeys: []string{"APCA_KEY", "APCA_SECRET"}},
			env:    map[string]string{"APCA_KEY": "k"},
			reason: ReasonMissingCredentials,
		},
		{
			name:   "ready",
			mode:   enum.ModeLive,
			live:   config.Live{Enabled: true, Provider: "alpaca", EnvKeys: []string{"APCA_KEY"}},
			env:    map[string]string{"APCA_KEY": "k"},
			reason: ReasonReady,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.settings.Live = tc.live
			if tc.env != nil {
				f.lookup = tc.env
			}
			ctrl, col := f.controller(t)

			require.NoError(t, ctrl.Start(t.Context(), sessionDate, tc.mode))
			assert.Eventually(t, func() bool { return len(col.opsWithReason(tc.reason)) == 1 }, time.Second, time.Millisecond)
			require.NoError(t, ctrl.Stop())
			waitDone(t, ctrl)
			assert.Equal(t, enum.FeedStateCompleted, ctrl.State())
			assert.Equal(t, tc.mode.String(), col.opsWithReason(tc.reason)[0].Detail[DetailMode])
		})
	}
}

func TestStopAtBarBoundary(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)
	col.onBar = func(ev model.Event) {
		if ev.Sequence() == 10 {
			assert.NoError(t, ctrl.Stop())
		}
	}

	require.NoError(t, ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical))
	assert.Len(t, col.topic(enum.TopicBarUpdate), 10)
	assert.Equal(t, enum.FeedStateCompleted, ctrl.State())

	ops := col.topic(enum.TopicOpsEvent)
	final := ops[len(ops)-1].Ops
	assert.Equal(t, "true", final.Detail[DetailCancelled])
	assert.Equal(t, "10", final.Detail[DetailPublished])
	assert.True(t, ctrl.Result().Cancelled)
	assert.Equal(t, uint64(1), ctrl.Metrics().RunsCancelled)
}

func TestContextCancelStopsRun(t *testing.T) {
	f := newFixture(t)
	ctrl, _ := f.controller(t)
	ctx, cancel := context.WithCancel(t.Context())

	require.NoError(t, ctrl.Start(ctx, sessionDate, enum.ModeLive))
	cancel()
	waitDone(t, ctrl)
	assert.Equal(t, enum.FeedStateCompleted, ctrl.State())
	assert.True(t, ctrl.Result().Cancelled)
}

func TestDataUnavailableErrorsRun(t *testing.T) {
	f := newFixture(t)
	f.settings.ContextSymbols = []string{"VIX", "DIA"}
	ctrl, col := f.controller(t)

	err := ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical)
	assert.ErrorIs(t, err, exception.ErrDataUnavailable)
	assert.Equal(t, enum.FeedStateErrored, ctrl.State())
	assert.ErrorIs(t, ctrl.Wait(t.Context()), exception.ErrDataUnavailable)
	assert.Empty(t, col.topic(enum.TopicBarUpdate))

	ops := col.topic(enum.TopicOpsEvent)
	require.GreaterOrEqual(t, len(ops), 2)
	anomaly := ops[len(ops)-2].Ops
	assert.Equal(t, enum.OpsKindDataAnomaly, anomaly.Kind)
	assert.Equal(t, "data_unavailable", anomaly.Reason())
	assert.Equal(t, "true", anomaly.Detail[DetailFatal])
	assert.Equal(t, []string{"running", "errored"}, col.states())
	assert.Equal(t, uint64(1), ctrl.Metrics().RunsErrored)
}

func TestDuplicateBarErrorsRun(t *testing.T) {
	f := newFixture(t)
	s := testutil.Session(t, 2024, time.January, 3)
	spy := testutil.SessionBars("SPY", s, 470)
	f.mem.Set("SPY", append(spy, spy[40]))
	ctrl, col := f.controller(t)

	err := ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical)
	assert.ErrorIs(t, err, exception.ErrDuplicateBar)
	var anomalies []model.OpsEvent
	for _, ev := range col.opsWithReason("duplicate_bar") {
		if ev.Kind == enum.OpsKindDataAnomaly {
			anomalies = append(anomalies, ev)
		}
	}
	require.Len(t, anomalies, 1)
	assert.Equal(t, "true", anomalies[0].Detail[DetailFatal])
	assert.Equal(t, enum.FeedStateErrored, ctrl.State())
	assert.Empty(t, col.topic(enum.TopicBarUpdate))
}

func TestSubscriberFailureDoesNotStopRun(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)
	_, err := ctrl.Subscribe([]string{"SPY"}, func(ev model.Event) error {
		if ev.Topic == enum.TopicBarUpdate {
			return errors.New("slow consumer gave up")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical))
	assert.Len(t, col.topic(enum.TopicBarUpdate), testutil.BucketsPerSession)
	assert.Len(t, col.opsWithReason(bus.ReasonCallbackError), testutil.BucketsPerSession)
	assert.Equal(t, enum.FeedStateCompleted, ctrl.State())
}

func TestSecondPrimaryIsInvalidSettings(t *testing.T) {
	f := newFixture(t)
	s := testutil.Session(t, 2024, time.January, 3)
	f.mem.Set("QQQ", testutil.SessionBars("QQQ", s, 400))
	f.settings.PrimarySymbols = []string{"SPY", "QQQ"}
	ctrl, col := f.controller(t)

	assert.ErrorIs(t, ctrl.Start(t.Context(), sessionDate, enum.ModeHistorical), exception.ErrInvalidConfig)
	assert.Equal(t, enum.FeedStateIdle, ctrl.State())
	assert.Zero(t, f.fetches.Load())
	assert.Empty(t, col.topic(enum.TopicBarUpdate))
}

func TestFilteredSubscriberSeesContiguousSequences(t *testing.T) {
	f := newFixture(t)
	ctrl, all := f.controller(t)

	spyOnly := &collector{}
	_, err := ctrl.Subscribe([]string{"SPY"}, spyOnly.callback)
	require.NoError(t, err)
	vixOnly := &collector{}
	_, err = ctrl.Subscribe([]string{"VIX"}, vixOnly.callback)
	require.NoError(t, err)

	require.NoError(t, ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical))

	for _, col := range []*collector{all, spyOnly} {
		bars := col.topic(enum.TopicBarUpdate)
		require.Len(t, bars, testutil.BucketsPerSession)
		for i, ev := range bars {
			assert.Equal(t, uint64(i+1), ev.Sequence(), "gap at index %d", i)
		}
	}
	assert.Empty(t, vixOnly.topic(enum.TopicBarUpdate))
	assert.Equal(t, []string{"running", "completed"}, vixOnly.states())
}

func TestReplayWindow(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)
	s := testutil.Session(t, 2024, time.January, 3)
	w := Window{From: testutil.Bucket(s, 10), To: testutil.Bucket(s, 19)}

	require.NoError(t, ctrl.Replay(t.Context(), sessionDate, w))
	waitDone(t, ctrl)
	require.NoError(t, ctrl.Result().Err)

	bars := col.topic(enum.TopicBarUpdate)
	require.Len(t, bars, 10)
	vix := testutil.SessionBars("VIX", s, 13, vixBuckets()...)
	for i, ev := range bars {
		assert.Equal(t, uint64(i+1), ev.Sequence())
		assert.Equal(t, testutil.Bucket(s, 10+i), ev.Snapshot.Primary.Time)

		var want model.Bar
		for _, v := range vix {
			if !v.Time.After(ev.Snapshot.Primary.Time) {
				want = v
			}
		}
		got, ok := ev.Snapshot.Context.Get("VIX")
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	running := col.topic(enum.TopicOpsEvent)[0].Ops
	assert.Equal(t, "running", running.Detail[health.DetailTo])
	assert.Equal(t, "2024-01-03T15:20:00Z", running.Detail[DetailWindowFrom])
	assert.Equal(t, "2024-01-03T16:05:00Z", running.Detail[DetailWindowTo])
	assert.Equal(t, w, ctrl.Result().Window)
	assert.Equal(t, uint64(10), ctrl.Result().Published)
}

func TestReplayWindowOpenBounds(t *testing.T) {
	s := testutil.Session(t, 2024, time.January, 3)

	testCases := []struct {
		name  string
		w     Window
		first int
		count int
	}{
		{name: "from only", w: Window{From: testutil.Bucket(s, 70)}, first: 70, count: 8},
		{name: "to only", w: Window{To: testutil.Bucket(s, 4)}, first: 0, count: 5},
		{name: "single bar", w: Window{From: testutil.Bucket(s, 30), To: testutil.Bucket(s, 30)}, first: 30, count: 1},
		{name: "after the close", w: Window{From: s.End}, count: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctrl, col := f.controller(t)
			require.NoError(t, ctrl.Replay(t.Context(), sessionDate, tc.w))
			waitDone(t, ctrl)
			require.NoError(t, ctrl.Result().Err)

			bars := col.topic(enum.TopicBarUpdate)
			require.Len(t, bars, tc.count)
			for i, ev := range bars {
				assert.Equal(t, uint64(i+1), ev.Sequence())
				assert.Equal(t, testutil.Bucket(s, tc.first+i), ev.Snapshot.Primary.Time)
			}
			assert.Equal(t, enum.FeedStateCompleted, ctrl.State())
		})
	}
}

func TestReplayRejectsInvertedWindow(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)
	s := testutil.Session(t, 2024, time.January, 3)

	err := ctrl.Replay(t.Context(), sessionDate, Window{From: testutil.Bucket(s, 20), To: testutil.Bucket(s, 10)})
	assert.ErrorIs(t, err, exception.ErrInvalidWindow)
	assert.Equal(t, enum.FeedStateIdle, ctrl.State())
	assert.Zero(t, f.fetches.Load())
	assert.Empty(t, col.all())
}

func TestLastBar(t *testing.T) {
	f := newFixture(t)
	ctrl, col := f.controller(t)
	s := testutil.Session(t, 2024, time.January, 3)

	_, ok := ctrl.LastBar("SPY")
	assert.False(t, ok)

	col.onBar = func(ev model.Event) {
		got, ok := ctrl.LastBar("SPY")
		assert.True(t, ok)
		assert.Equal(t, ev.Snapshot.Primary, got)
	}
	require.NoError(t, ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical))

	spy := testutil.SessionBars("SPY", s, 470)
	got, ok := ctrl.LastBar("SPY")
	require.True(t, ok)
	assert.Equal(t, spy[len(spy)-1], got)

	vix := testutil.SessionBars("VIX", s, 13, vixBuckets()...)
	got, ok = ctrl.LastBar("VIX")
	require.True(t, ok)
	assert.Equal(t, vix[len(vix)-1], got)

	_, ok = ctrl.LastBar("QQQ")
	assert.False(t, ok)
}

func TestJournaledRunsAreIdentical(t *testing.T) {
	var journals []string
	for i := 0; i < 2; i++ {
		f := newFixture(t)
		f.settings.JournalDir = t.TempDir()
		ctrl, _ := f.controller(t)
		require.NoError(t, ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical))
		require.NotEmpty(t, ctrl.Result().Journal)
		journals = append(journals, ctrl.Result().Journal)
	}

	a, err := recorder.ReadFile(journals[0])
	require.NoError(t, err)
	b, err := recorder.ReadFile(journals[1])
	require.NoError(t, err)
	require.NoError(t, recorder.CompareSnapshots(a, b))

	var bars int
	for _, ev := range a {
		if ev.Topic == enum.TopicBarUpdate {
			bars++
		}
	}
	assert.Equal(t, 78, bars)
	assert.Equal(t, enum.TopicOpsEvent, a[0].Topic)
	assert.Equal(t, "running", a[0].Ops.Detail[health.DetailTo])
	assert.Equal(t, "completed", a[len(a)-1].Ops.Detail[health.DetailTo])
}

func TestStopAndWaitBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctrl, _ := f.controller(t)
	assert.ErrorIs(t, ctrl.Stop(), exception.ErrInvalidState)
	assert.ErrorIs(t, ctrl.Wait(t.Context()), exception.ErrInvalidState)
}

func TestWaitHonoursContext(t *testing.T) {
	f := newFixture(t)
	ctrl, _ := f.controller(t)
	require.NoError(t, ctrl.Start(t.Context(), sessionDate, enum.ModePaper))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ctrl.Wait(ctx), context.DeadlineExceeded)

	require.NoError(t, ctrl.Stop())
	assert.NoError(t, ctrl.Wait(t.Context()))
}

func fullSessionFixture(t testing.TB) (config.Settings, *barsource.Memory) {
	s := testutil.Session(t, 2024, time.January, 3)
	mem := barsource.NewMemory()
	symbols := []string{"SPY", "QQQ", "IWM", "DIA", "VIX"}
	for i, sym := range symbols {
		mem.Set(sym, testutil.SessionBars(sym, s, float64(50*(i+1))))
	}
	return config.Settings{PrimarySymbols: symbols[:1], ContextSymbols: symbols[1:]}, mem
}

func TestFullSessionUnder200ms(t *testing.T) {
	settings, mem := fullSessionFixture(t)
	ctrl, err := New(settings, Deps{Calendar: testutil.Calendar(t), Source: mem})
	require.NoError(t, err)
	var bars atomic.Int32
	_, err = ctrl.Subscribe(nil, func(ev model.Event) error {
		if ev.Topic == enum.TopicBarUpdate {
			bars.Add(1)
		}
		return nil
	})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, ctrl.Run(t.Context(), sessionDate, enum.ModeHistorical))
	elapsed := time.Since(start)
	assert.Equal(t, int32(78), bars.Load())
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func BenchmarkFullSessionReplay(b *testing.B) {
	settings, mem := fullSessionFixture(b)
	cal := testutil.Calendar(b)
	b.ReportAllocs()
	for b.Loop() {
		ctrl, err := New(settings, Deps{Calendar: cal, Source: mem, RunID: func() string { return "bench" }})
		if err != nil {
			b.Fatal(err)
		}
		if err := ctrl.Run(context.Background(), sessionDate, enum.ModeHistorical); err != nil {
			b.Fatal(err)
		}
	}
}
