package barsource

import (
	"context"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/exception"
)

// parquetRow is the column layout of a stored bar file. Timestamp is unix milliseconds.
type parquetRow struct {
	Timestamp int64   `parquet:"t"`
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    int64   `parquet:"v"`
}

// ParquetFile reads one parquet file per symbol.
type ParquetFile struct {
	Path string
}

func (f ParquetFile) Fetch(ctx context.Context, symbol string, _ model.Session) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(f.Path); err != nil {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "stat %s: %v", f.Path, err)
	}
	rows, err := parquet.ReadFile[parquetRow](f.Path)
	if err != nil {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "read %s: %v", f.Path, err)
	}
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[i] = model.Bar{
			Symbol: symbol,
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, nil
}

// WriteParquet stores bars at path in the layout ParquetFile reads.
func WriteParquet(path string, bars []model.Bar) error {
	rows := make([]parquetRow, len(bars))
	for i, b := range bars {
		rows[i] = parquetRow{
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, rows)
}
