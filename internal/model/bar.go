package model

import (
	"fmt"
	"math"
	"time"

	"marketfeed/internal/errors"
	"marketfeed/pkg/exception"
)

// BarInterval is the fixed width of every bar.
const BarInterval = 5 * time.Minute

// Bar is one 5-minute OHLCV observation. Bars are values and are never mutated after load.
type Bar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"timestamp_utc"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Validate reports exception.ErrMalformedBar when the bar breaks an OHLCV invariant.
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return errors.Wrap(exception.ErrMalformedBar, "empty symbol")
	}
	if b.Time.IsZero() {
		return errors.Wrapf(exception.ErrMalformedBar, "%s: zero timestamp", b.Symbol)
	}
	if !b.Time.Truncate(BarInterval).Equal(b.Time) {
		return errors.Wrapf(exception.ErrMalformedBar, "%s: timestamp %s not on a %s boundary", b.Symbol, b.Time.UTC().Format(time.RFC3339Nano), BarInterval)
	}
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(exception.ErrMalformedBar, "%s@%s: non-finite price", b.Symbol, b.stamp())
		}
	}
	if b.Low > b.High || b.Open < b.Low || b.Open > b.High || b.Close < b.Low || b.Close > b.High {
		return errors.Wrapf(exception.ErrMalformedBar, "%s@%s: prices outside low/high range", b.Symbol, b.stamp())
	}
	if b.Volume < 0 {
		return errors.Wrapf(exception.ErrMalformedBar, "%s@%s: negative volume", b.Symbol, b.stamp())
	}
	return nil
}

func (b Bar) stamp() string {
	return b.Time.UTC().Format(time.RFC3339)
}

func (b Bar) String() string {
	return fmt.Sprintf("%s@%s o=%g h=%g l=%g c=%g v=%d", b.Symbol, b.stamp(), b.Open, b.High, b.Low, b.Close, b.Volume)
}
