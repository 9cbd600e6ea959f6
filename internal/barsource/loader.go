package barsource

import (
	"context"
	"slices"
	"time"

	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/internal/session"
	"marketfeed/pkg/exception"
)

// Loader turns raw Source records into a Series. It holds no per-load state.
type Loader struct {
	src Source
	cal *session.Calendar
}

func NewLoader(src Source, cal *session.Calendar) *Loader {
	return &Loader{src: src, cal: cal}
}

// Load fetches symbol once and normalizes the result to the RTH window of s.
func (l *Loader) Load(ctx context.Context, symbol string, s model.Session) (Series, Report, error) {
	report := Report{Symbol: symbol}
	if l == nil || l.src == nil {
		return Series{}, report, errors.Wrapf(exception.ErrDataUnavailable, "no source configured for %s", symbol)
	}

	raw, err := l.src.Fetch(ctx, symbol, s)
	if err != nil {
		return Series{}, report, errors.Wrapf(err, "fetch %s", symbol)
	}

	var (
		outOfOrder      int
		outOfOrderFirst time.Time
		dropped         int
		droppedFirst    time.Time
	)
	kept := make([]model.Bar, 0, len(raw))
	for i, b := range raw {
		if b.Symbol == "" {
			b.Symbol = symbol
		}
		if b.Symbol != symbol {
			return Series{}, report, errors.Wrapf(exception.ErrMalformedBar, "%s: record %d belongs to %s", symbol, i, b.Symbol)
		}
		b.Time = b.Time.UTC()
		if err := b.Validate(); err != nil {
			return Series{}, report, errors.Wrapf(err, "record %d", i)
		}
		if i > 0 && b.Time.Before(raw[i-1].Time) {
			if outOfOrder == 0 || b.Time.Before(outOfOrderFirst) {
				outOfOrderFirst = b.Time
			}
			outOfOrder++
		}
		if !l.cal.IsWithinSession(b.Time, s) {
			if dropped == 0 || b.Time.Before(droppedFirst) {
				droppedFirst = b.Time
			}
			dropped++
			continue
		}
		kept = append(kept, b)
	}
	report.add(AnomalyOutOfOrder, outOfOrder, outOfOrderFirst)
	report.add(AnomalyOutOfRTH, dropped, droppedFirst)

	slices.SortStableFunc(kept, func(a, b model.Bar) int {
		return a.Time.Compare(b.Time)
	})
	for i := 1; i < len(kept); i++ {
		if kept[i].Time.Equal(kept[i-1].Time) {
			return Series{}, report, errors.Wrapf(exception.ErrDuplicateBar, "%s at %s", symbol, kept[i].Time.Format(time.RFC3339))
		}
	}

	if len(kept) > 0 {
		missing, first := l.missingBuckets(kept, s)
		report.add(AnomalyGap, missing, first)
	}
	for _, a := range report.Anomalies {
		logs.Infof("bar anomaly, session: %s, %s", s.Date, a)
	}

	return Series{symbol: symbol, bars: kept}, report, nil
}

func (l *Loader) missingBuckets(bars []model.Bar, s model.Session) (int, time.Time) {
	var (
		missing int
		first   time.Time
		idx     int
	)
	for _, bucket := range l.cal.Buckets(s) {
		if idx < len(bars) && bars[idx].Time.Equal(bucket) {
			idx++
			continue
		}
		if missing == 0 {
			first = bucket
		}
		missing++
	}
	return missing, first
}

// Loaded is the result of LoadAll for one symbol.
type Loaded struct {
	Series Series
	Report Report
}

// LoadAll loads every symbol concurrently. Sources are independent and read-only,
// so only the load fans out; results come back keyed by symbol. The first failure
// cancels the remaining loads.
func (l *Loader) LoadAll(ctx context.Context, symbols []string, s model.Session) (map[string]Loaded, error) {
	results := make([]Loaded, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range symbols {
		g.Go(func() error {
			series, report, err := l.Load(gctx, symbol, s)
			if err != nil {
				return err
			}
			results[i] = Loaded{Series: series, Report: report}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Loaded, len(symbols))
	for i, symbol := range symbols {
		out[symbol] = results[i]
	}
	return out, nil
}
