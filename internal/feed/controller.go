package feed

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"marketfeed/internal/barsource"
	"marketfeed/internal/bus"
	"marketfeed/internal/clock"
	"marketfeed/internal/config"
	"marketfeed/internal/errors"
	"marketfeed/internal/health"
	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
	"marketfeed/internal/obs"
	"marketfeed/internal/session"
	"marketfeed/pkg/exception"
)

const (
	DetailMode      = "mode"
	DetailSession   = "session_date"
	DetailCancelled = "cancelled"
	DetailPublished = "published"
	DetailSymbol    = "symbol"
	DetailCount     = "count"
	DetailFirst     = "first"
	DetailFatal     = "fatal"
	DetailProvider  = "provider"
	DetailMissing   = "missing"
)

// Deps are the collaborators of a Controller. Zero fields get defaults built
// from the settings.
type Deps struct {
	Calendar  *session.Calendar
	Source    barsource.Source
	Publisher *bus.Publisher
	Clock     clock.Clock
	Metrics   *obs.Metrics
	// Lookup resolves credential variables; os.LookupEnv when nil.
	Lookup func(string) (string, bool)
	// RunID names a run; uuid.NewString when nil.
	RunID func() string
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Session   model.Session
	Mode      enum.Mode
	Published uint64
	Cancelled bool
	Err       error
	// Window is the replay window; zero for a whole session.
	Window Window
	// Journal is the journal file path when journaling is on.
	Journal string
}

// Controller runs at most one session. State moves idle -> running -> completed
// or errored and never back; build a new Controller for the next run.
type Controller struct {
	settings config.Settings
	cal      *session.Calendar
	loader   *barsource.Loader
	pub      *bus.Publisher
	monitor  *health.Monitor
	clock    clock.Clock
	metrics  *obs.Metrics
	lookup   func(string) (string, bool)
	runID    func() string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	result  Result

	lastMu sync.RWMutex
	last   map[string]model.Bar
}

func New(settings config.Settings, deps Deps) (*Controller, error) {
	settings = settings.Normalize()

	cal := deps.Calendar
	if cal == nil {
		var err error
		cal, err = session.NewCalendar(session.WithExtraHolidays(settings.ExtraHolidays...))
		if err != nil {
			return nil, errors.Wrap(err, "build calendar")
		}
	}
	src := deps.Source
	if src == nil {
		src = barsource.NewByLocator(barsource.Locators(settings.Locators))
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	pub := deps.Publisher
	if pub == nil {
		pub = bus.NewPublisher(bus.WithClock(clk), bus.WithMetrics(metrics))
	}
	lookup := deps.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	runID := deps.RunID
	if runID == nil {
		runID = uuid.NewString
	}

	return &Controller{
		settings: settings,
		cal:      cal,
		loader:   barsource.NewLoader(src, cal),
		pub:      pub,
		monitor:  health.NewMonitor(pub, settings.HeartbeatInterval.Std(), clk),
		clock:    clk,
		metrics:  metrics,
		lookup:   lookup,
		runID:    runID,
		done:     make(chan struct{}),
		last:     make(map[string]model.Bar),
	}, nil
}

// Subscribe registers cb on the controller's publisher.
func (c *Controller) Subscribe(symbols []string, cb bus.Callback) (*bus.Subscription, error) {
	return c.pub.Subscribe(symbols, cb)
}

func (c *Controller) Unsubscribe(sub *bus.Subscription) bool {
	return c.pub.Unsubscribe(sub)
}

func (c *Controller) State() enum.FeedState {
	return c.monitor.State()
}

func (c *Controller) Metrics() obs.Snapshot {
	return c.metrics.Snapshot()
}

// Done is closed when the run reaches completed or errored.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// LastBar returns the latest bar of symbol carried by a published bar.update,
// as primary or as a present context bar.
func (c *Controller) LastBar(symbol string) (model.Bar, bool) {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	b, ok := c.last[symbol]
	return b, ok
}

// Result returns the outcome of the run; it is complete once Done is closed.
func (c *Controller) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Start begins a run of date in mode. It is valid only once, from idle. Date,
// mode and settings are checked before anything but a config_error event is
// published; on failure the state stays idle. The run then continues on its own
// goroutine until it ends or Stop is called. Cancelling ctx stops the run like Stop.
func (c *Controller) Start(ctx context.Context, date model.Date, mode enum.Mode) error {
	return c.start(ctx, date, mode, Window{})
}

// Replay starts a historical run of date limited to the primary bars inside w.
// Sequences still start at 1 with the first bar in the window. It follows the
// rules of Start; an inverted window fails with ErrInvalidWindow.
func (c *Controller) Replay(ctx context.Context, date model.Date, w Window) error {
	return c.start(ctx, date, enum.ModeHistorical, w)
}

func (c *Controller) start(ctx context.Context, date model.Date, mode enum.Mode, w Window) error {
	runCtx, cancel, err := c.claim(ctx)
	if err != nil {
		return err
	}

	s, err := c.prepare(date, mode, w)
	if err != nil {
		c.release(cancel)
		return err
	}

	runID := c.runID()
	c.pub.BeginSession(s.Date, runID)
	c.mu.Lock()
	c.result = Result{RunID: runID, Session: s, Mode: mode, Window: w}
	c.mu.Unlock()

	journal := c.openJournal(s.Date)
	if err := c.monitor.Transition(enum.FeedStateIdle, enum.FeedStateRunning, w.detail(map[string]string{
		DetailMode:    mode.String(),
		DetailSession: s.Date.String(),
	})); err != nil && !errors.Is(err, exception.ErrSubscriberFailure) {
		journal.close(c.pub)
		c.release(cancel)
		return err
	}
	logs.Infof("feed started, run: %s, session: %s, mode: %s, subscribers: %d", runID, s.Date, mode, c.pub.Subscribers())

	go c.run(runCtx, s, mode, w, journal)
	return nil
}

// claim reserves the controller for one run. Callbacks may call Stop or State
// while Start publishes, so c.mu is not held past this point.
func (c *Controller) claim(ctx context.Context) (context.Context, context.CancelFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.monitor.State() != enum.FeedStateIdle {
		return nil, nil, errors.Wrapf(exception.ErrInvalidState, "start from %s", c.monitor.State())
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.started = true
	c.cancel = cancel
	return runCtx, cancel, nil
}

func (c *Controller) release(cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.cancel = nil
}

func (c *Controller) prepare(date model.Date, mode enum.Mode, w Window) (model.Session, error) {
	if !mode.IsAvailable() {
		return model.Session{}, errors.Wrapf(exception.ErrUnsupportedMode, "mode %d", mode)
	}
	if err := w.Validate(); err != nil {
		return model.Session{}, err
	}
	s, err := c.cal.SessionFor(date)
	if err != nil {
		return model.Session{}, err
	}
	if err := c.settings.Validate(); err != nil {
		c.publishConfigError(err)
		return model.Session{}, err
	}
	return s, nil
}

// Stop asks the run to end at the next bar boundary; the run then completes with
// cancelled=true. Stop before Start fails with ErrInvalidState; after the run
// has ended it does nothing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.cancel == nil {
		return errors.Wrap(exception.ErrInvalidState, "stop before start")
	}
	c.cancel()
	return nil
}

// Wait blocks until the run ends or ctx is done. It returns the error that put
// the run in errored, or nil when it completed.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return errors.Wrap(exception.ErrInvalidState, "wait before start")
	}
	select {
	case <-c.done:
		return c.Result().Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is Start followed by waiting for the run to end.
func (c *Controller) Run(ctx context.Context, date model.Date, mode enum.Mode) error {
	if err := c.Start(ctx, date, mode); err != nil {
		return err
	}
	<-c.done
	return c.Result().Err
}

func (c *Controller) run(ctx context.Context, s model.Session, mode enum.Mode, w Window, journal *journalSub) {
	start := time.Now()
	var (
		cancelled bool
		err       error
	)
	if mode.IsStub() {
		cancelled = c.runStub(ctx, mode)
	} else {
		cancelled, err = c.runHistorical(ctx, s, w)
	}
	c.finish(s, mode, cancelled, err, journal, time.Since(start))
}

func (c *Controller) finish(s model.Session, mode enum.Mode, cancelled bool, err error, journal *journalSub, elapsed time.Duration) {
	published := c.pub.LastSequence()
	detail := map[string]string{
		DetailMode:      mode.String(),
		DetailSession:   s.Date.String(),
		DetailPublished: uintString(published),
	}

	to := enum.FeedStateCompleted
	if err != nil {
		to = enum.FeedStateErrored
		detail[bus.DetailError] = err.Error()
		detail[bus.DetailReason] = failureReason(err)
		c.publishOps(enum.OpsKindDataAnomaly, "run failed: "+err.Error(), map[string]string{
			bus.DetailReason: failureReason(err),
			DetailFatal:      "true",
			bus.DetailError:  err.Error(),
		})
	} else {
		detail[DetailCancelled] = boolString(cancelled)
	}

	if terr := c.monitor.Transition(enum.FeedStateRunning, to, detail); terr != nil && !errors.Is(terr, exception.ErrSubscriberFailure) {
		logs.Errorf("feed transition to %s, err: %+v", to, terr)
	}
	journal.close(c.pub)
	c.metrics.ObserveRun(to, cancelled, elapsed)

	c.mu.Lock()
	c.result.Published = published
	c.result.Cancelled = cancelled
	c.result.Err = err
	runID := c.result.RunID
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if err != nil {
		logs.Errorf("feed errored, run: %s, session: %s, err: %+v", runID, s.Date, err)
	} else {
		logs.Infof("feed %s, run: %s, session: %s, published: %d, cancelled: %t, elapsed: %s", to, runID, s.Date, published, cancelled, elapsed)
	}
	close(c.done)
}

func (c *Controller) publishOps(kind enum.OpsKind, message string, detail map[string]string) {
	err := c.pub.PublishOps(model.OpsEvent{
		Time:    c.clock.Now(),
		Kind:    kind,
		Message: message,
		Detail:  detail,
	})
	if err != nil && !errors.Is(err, exception.ErrSubscriberFailure) {
		logs.Errorf("publish %s, err: %+v", kind, err)
	}
}

func (c *Controller) publishConfigError(err error) {
	c.publishOps(enum.OpsKindConfigError, "invalid settings: "+err.Error(), map[string]string{
		bus.DetailReason: "invalid_config",
		bus.DetailError:  err.Error(),
	})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, exception.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, exception.ErrDuplicateBar):
		return "duplicate_bar"
	case errors.Is(err, exception.ErrMalformedBar):
		return "malformed_bar"
	case errors.Is(err, exception.ErrNonMonotonic):
		return "non_monotonic"
	default:
		return "internal"
	}
}
