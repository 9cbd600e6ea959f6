package barsource

import (
	"context"
	"time"

	"gorm.io/gorm"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/conn"
	"marketfeed/pkg/exception"
)

const defaultBarTable = "bars"

// barRow maps the bars table: one row per symbol and bar start.
type barRow struct {
	Symbol string    `gorm:"column:symbol;primaryKey"`
	TS     time.Time `gorm:"column:ts;primaryKey"`
	Open   float64   `gorm:"column:open"`
	High   float64   `gorm:"column:high"`
	Low    float64   `gorm:"column:low"`
	Close  float64   `gorm:"column:close"`
	Volume int64     `gorm:"column:volume"`
}

// Postgres reads bars from a table with the barRow columns.
type Postgres struct {
	client *conn.Client
	table  string
}

// NewPostgres wraps an open client. An empty table name selects "bars".
func NewPostgres(client *conn.Client, table string) *Postgres {
	if table == "" {
		table = defaultBarTable
	}
	return &Postgres{client: client, table: table}
}

func (p *Postgres) Fetch(ctx context.Context, symbol string, s model.Session) ([]model.Bar, error) {
	db := p.client.DB()
	if db == nil {
		return nil, errors.Wrap(exception.ErrDataUnavailable, "postgres: nil client")
	}
	var rows []barRow
	err := p.query(db.WithContext(ctx), symbol, s).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "postgres %s: %v", symbol, err)
	}
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[i] = model.Bar{
			Symbol: r.Symbol,
			Time:   r.TS.UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, nil
}

func (p *Postgres) query(db *gorm.DB, symbol string, s model.Session) *gorm.DB {
	return db.Table(p.table).
		Where("symbol = ? AND ts >= ? AND ts < ?", symbol, s.Start.Add(-extendedHours), s.End.Add(extendedHours)).
		Order("ts")
}

func (p *Postgres) Close() error {
	return p.client.Close()
}
