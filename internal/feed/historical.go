package feed

import (
	"context"
	"time"

	"marketfeed/internal/align"
	"marketfeed/internal/barsource"
	"marketfeed/internal/bus"
	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
	"marketfeed/pkg/exception"
)

// runHistorical replays the primary bars of s inside w. It reports cancelled when
// ctx ended the run early.
func (c *Controller) runHistorical(ctx context.Context, s model.Session, w Window) (bool, error) {
	loadStart := time.Now()
	loaded, err := c.loader.LoadAll(ctx, c.settings.Symbols(), s)
	c.metrics.ObserveLoad(time.Since(loadStart))
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, err
	}
	c.reportAnomalies(loaded)

	ctxSeries := make(map[string]barsource.Series, len(c.settings.ContextSymbols))
	for _, sym := range c.settings.ContextSymbols {
		ctxSeries[sym] = loaded[sym].Series
	}
	engine := align.New(c.settings.ContextSymbols, ctxSeries)

	for _, primary := range loaded[c.settings.Primary()].Series.Bars() {
		if ctx.Err() != nil {
			return true, nil
		}
		if w.before(primary.Time) {
			continue
		}
		if w.after(primary.Time) {
			break
		}
		if !s.Contains(primary.Time) {
			return false, errors.Wrapf(exception.ErrMalformedBar, "primary %s outside session", primary)
		}
		ctxBars, err := engine.Align(primary)
		if err != nil {
			return false, err
		}
		c.remember(primary, ctxBars)
		_, err = c.pub.PublishSnapshot(model.AlignedSnapshot{
			SessionDate: s.Date,
			Primary:     primary,
			Context:     ctxBars,
		})
		if err != nil && !errors.Is(err, exception.ErrSubscriberFailure) {
			return false, err
		}
	}
	return false, nil
}

// remember records the bars of a snapshot about to be published for LastBar.
func (c *Controller) remember(primary model.Bar, ctxBars model.ContextBars) {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	c.last[primary.Symbol] = primary
	for _, cb := range ctxBars {
		if cb.Present {
			c.last[cb.Symbol] = cb.Bar
		}
	}
}

func (c *Controller) reportAnomalies(loaded map[string]barsource.Loaded) {
	for _, sym := range c.settings.Symbols() {
		for _, a := range loaded[sym].Report.Anomalies {
			c.metrics.AddAnomalies(a.Count)
			c.publishOps(enum.OpsKindDataAnomaly, a.String(), map[string]string{
				bus.DetailReason: string(a.Code),
				DetailSymbol:     a.Symbol,
				DetailCount:      intString(a.Count),
				DetailFirst:      a.First.UTC().Format(time.RFC3339),
				DetailFatal:      "false",
			})
		}
	}
}
