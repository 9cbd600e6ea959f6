package barsource

import (
	"bytes"
	"context"
	"math"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/exception"
)

var maxVolume = decimal.NewFromInt(math.MaxInt64)

// jsonRecord is one stored bar. Prices and volume may be JSON numbers or strings.
type jsonRecord struct {
	TS        string              `json:"ts"`
	Timestamp string              `json:"timestamp_utc"`
	Open      decimal.Decimal     `json:"open"`
	High      decimal.Decimal     `json:"high"`
	Low       decimal.Decimal     `json:"low"`
	Close     decimal.Decimal     `json:"close"`
	Volume    decimal.NullDecimal `json:"volume"`
}

type jsonEnvelope struct {
	Data []jsonRecord `json:"data"`
}

// JSONFile reads one JSON file per symbol: either an array of records or {"data": [...]}.
type JSONFile struct {
	Path string
}

func (f JSONFile) Fetch(ctx context.Context, symbol string, _ model.Session) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "read %s: %v", f.Path, err)
	}
	return DecodeJSON(symbol, data)
}

// DecodeJSON parses stored records into bars for symbol.
func DecodeJSON(symbol string, data []byte) ([]model.Bar, error) {
	var records []jsonRecord
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var env jsonEnvelope
		if err := sonic.ConfigStd.Unmarshal(trimmed, &env); err != nil {
			return nil, errors.Wrapf(exception.ErrDataUnavailable, "decode %s: %v", symbol, err)
		}
		records = env.Data
	} else if err := sonic.ConfigStd.Unmarshal(trimmed, &records); err != nil {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "decode %s: %v", symbol, err)
	}

	bars := make([]model.Bar, 0, len(records))
	for i, r := range records {
		bar, err := r.bar(symbol)
		if err != nil {
			return nil, errors.Wrapf(err, "%s record %d", symbol, i)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (r jsonRecord) bar(symbol string) (model.Bar, error) {
	raw := r.TS
	if raw == "" {
		raw = r.Timestamp
	}
	if raw == "" {
		return model.Bar{}, errors.Wrap(exception.ErrMalformedBar, "missing ts")
	}
	ts, err := parseUTC(raw)
	if err != nil {
		return model.Bar{}, errors.Wrapf(exception.ErrMalformedBar, "parse ts %q: %v", raw, err)
	}
	var volume int64
	if r.Volume.Valid {
		if !r.Volume.Decimal.IsInteger() {
			return model.Bar{}, errors.Wrapf(exception.ErrMalformedBar, "fractional volume %s", r.Volume.Decimal)
		}
		if !r.Volume.Decimal.LessThanOrEqual(maxVolume) {
			return model.Bar{}, errors.Wrapf(exception.ErrMalformedBar, "volume %s out of range", r.Volume.Decimal)
		}
		volume = r.Volume.Decimal.IntPart()
	}
	return model.Bar{
		Symbol: symbol,
		Time:   ts,
		Open:   r.Open.InexactFloat64(),
		High:   r.High.InexactFloat64(),
		Low:    r.Low.InexactFloat64(),
		Close:  r.Close.InexactFloat64(),
		Volume: volume,
	}, nil
}

// parseUTC accepts RFC 3339 with a zone or "Z"; a value without zone is taken as UTC.
func parseUTC(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// EncodeJSON writes bars in the record layout DecodeJSON reads.
func EncodeJSON(bars []model.Bar) ([]byte, error) {
	records := make([]jsonRecord, len(bars))
	for i, b := range bars {
		records[i] = jsonRecord{
			TS:     b.Time.UTC().Format(time.RFC3339),
			Open:   decimal.NewFromFloat(b.Open),
			High:   decimal.NewFromFloat(b.High),
			Low:    decimal.NewFromFloat(b.Low),
			Close:  decimal.NewFromFloat(b.Close),
			Volume: decimal.NewNullDecimal(decimal.NewFromInt(b.Volume)),
		}
	}
	return sonic.ConfigStd.Marshal(records)
}
