package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"marketfeed/internal/barsource"
	"marketfeed/internal/feed"
	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
	"marketfeed/internal/recorder"
	"marketfeed/internal/session"
	"marketfeed/internal/stream"
)

type runOptions struct {
	date       string
	journalDir string
	symbols    []string
	quiet      bool
	socket     string
	overflow   string
	queueSize  int
	from       string
	to         string
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay one historical session and print every event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd.Context(), root, opts, enum.ModeHistorical, cmd.OutOrStdout())
		},
	}
	bindRunFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.from, "from", "", "first primary bar to replay, HH:MM exchange time or RFC 3339")
	cmd.Flags().StringVar(&opts.to, "to", "", "last primary bar to replay, HH:MM exchange time or RFC 3339")
	return cmd
}

func newStubCmd(root *rootOptions, name string) *cobra.Command {
	mode, _ := enum.ParseMode(name)
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Report %s provider readiness and idle with heartbeats until interrupted", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd.Context(), root, opts, mode, cmd.OutOrStdout())
		},
	}
	bindRunFlags(cmd, opts)
	return cmd
}

func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.date, "date", "d", "", "session date, YYYY-MM-DD")
	flags.StringVar(&opts.journalDir, "journal", "", "journal directory; overrides settings")
	flags.StringSliceVar(&opts.symbols, "symbols", nil, "print bar.update only for these primary symbols")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print events")
	flags.StringVar(&opts.socket, "socket", "", "also stream events to clients of this unix socket")
	flags.StringVar(&opts.overflow, "overflow", stream.OverflowBlock.String(), "full client queue policy: block, drop_oldest or disconnect")
	flags.IntVar(&opts.queueSize, "queue", 0, "records buffered per socket client (default 1024)")
	_ = cmd.MarkFlagRequired("date")
}

func runFeed(ctx context.Context, root *rootOptions, opts *runOptions, mode enum.Mode, out io.Writer) error {
	date, err := model.ParseDate(opts.date)
	if err != nil {
		return errors.Wrap(err, "parse date").With("date", opts.date)
	}
	w, err := windowOf(date, opts.from, opts.to)
	if err != nil {
		return err
	}
	settings, err := root.settings()
	if err != nil {
		return err
	}
	if opts.journalDir != "" {
		settings.JournalDir = opts.journalDir
	}

	src := barsource.NewByLocator(barsource.Locators(settings.Locators))
	defer func() {
		if err := src.Close(); err != nil {
			logs.Errorf("close bar sources, err: %+v", err)
		}
	}()

	ctrl, err := feed.New(settings, feed.Deps{Source: src})
	if err != nil {
		return errors.Wrap(err, "build feed")
	}
	if !opts.quiet {
		p := &printer{w: out}
		if _, err := ctrl.Subscribe(nil, p.print(opts.symbols)); err != nil {
			return errors.Wrap(err, "subscribe printer")
		}
	}

	if opts.socket != "" {
		srv, err := startStream(ctx, opts)
		if err != nil {
			return err
		}
		defer func() {
			if err := srv.Close(); err != nil {
				logs.Errorf("close stream %s, err: %+v", opts.socket, err)
			}
		}()
		if _, err := ctrl.Subscribe(nil, srv.Callback); err != nil {
			return errors.Wrap(err, "subscribe stream")
		}
	}

	if mode == enum.ModeHistorical {
		err = ctrl.Replay(ctx, date, w)
	} else {
		err = ctrl.Start(ctx, date, mode)
	}
	if err != nil {
		return errors.Wrap(err, "start "+mode.String()+" feed").With("date", date.String())
	}
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown signal, stopping feed")
			_ = ctrl.Stop()
		case <-ctrl.Done():
		}
	}()

	<-ctrl.Done()
	res := ctrl.Result()
	logs.Infof("run %s finished, published: %d, cancelled: %t, journal: %s", res.RunID, res.Published, res.Cancelled, res.Journal)
	if res.Err != nil {
		return errors.Wrap(res.Err, "run feed").With("run", res.RunID)
	}
	return nil
}

// windowOf parses the --from and --to bounds. A clock time is read in the
// exchange time zone on date.
func windowOf(date model.Date, from, to string) (feed.Window, error) {
	if from == "" && to == "" {
		return feed.Window{}, nil
	}
	cal, err := session.NewCalendar()
	if err != nil {
		return feed.Window{}, errors.Wrap(err, "build calendar")
	}
	var w feed.Window
	if w.From, err = windowBound(date, from, cal.Location()); err != nil {
		return feed.Window{}, errors.Wrap(err, "parse from").With("from", from)
	}
	if w.To, err = windowBound(date, to, cal.Location()); err != nil {
		return feed.Window{}, errors.Wrap(err, "parse to").With("to", to)
	}
	return w, nil
}

func windowBound(date model.Date, value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	clock, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, err
	}
	return date.At(clock.Hour(), clock.Minute(), loc).UTC(), nil
}

func startStream(ctx context.Context, opts *runOptions) (*stream.Server, error) {
	policy, ok := stream.ParseOverflowPolicy(opts.overflow)
	if !ok {
		return nil, errors.Errorf("unknown overflow policy %q", opts.overflow)
	}
	srv, err := stream.Listen(stream.Config{Path: opts.socket, QueueSize: opts.queueSize, Overflow: policy})
	if err != nil {
		return nil, errors.Wrap(err, "listen stream").With("socket", opts.socket)
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			logs.Errorf("serve stream %s, err: %+v", opts.socket, err)
		}
	}()
	logs.Infof("streaming events on %s", opts.socket)
	return srv, nil
}

// printer writes one "<topic> <json>" line per event.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) print(symbols []string) func(model.Event) error {
	keep := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		keep[s] = struct{}{}
	}
	return func(ev model.Event) error {
		if ev.Topic == enum.TopicBarUpdate && len(keep) > 0 {
			if _, ok := keep[ev.Snapshot.Primary.Symbol]; !ok {
				return nil
			}
		}
		return p.write(ev)
	}
}

func (p *printer) write(ev model.Event) error {
	payload, err := recorder.EncodeEvent(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = fmt.Fprintf(p.w, "%s %s\n", ev.Topic, payload)
	return err
}
