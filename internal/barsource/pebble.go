package barsource

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/cockroachdb/pebble"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/exception"
)

const (
	barKeyPrefix  = "bar/"
	barValueSize  = 5 * 8
	extendedHours = 6 * time.Hour
)

// PebbleOptions configures a PebbleStore.
type PebbleOptions struct {
	// Dir is the database directory.
	Dir string
	// ReadOnly opens an existing database without write access; a missing
	// database is then reported as exception.ErrDataUnavailable.
	ReadOnly bool
	// Sync forces a WAL sync on every committed batch.
	Sync bool
	// PebbleOptions allows advanced tuning. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

// PebbleStore keeps bars in a Pebble database under bar/<symbol>/<unix nanos, big endian>,
// so a session is one ordered range scan.
type PebbleStore struct {
	db   *pebble.DB
	sync bool
}

func OpenPebble(opts PebbleOptions) (*PebbleStore, error) {
	if opts.Dir == "" {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "pebble: Dir is empty")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.ReadOnly {
		po.ReadOnly = true
		po.ErrorIfNotExists = true
	}
	db, err := pebble.Open(opts.Dir, po)
	if err != nil {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "pebble open %s: %v", opts.Dir, err)
	}
	return &PebbleStore{db: db, sync: opts.Sync}, nil
}

func (p *PebbleStore) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Put writes bars in one batch. Existing bars with the same symbol and time are replaced.
func (p *PebbleStore) Put(bars ...model.Bar) error {
	b := p.db.NewBatch()
	defer b.Close()
	for _, bar := range bars {
		if err := bar.Validate(); err != nil {
			return err
		}
		if err := b.Set(barKey(bar.Symbol, bar.Time), encodeBarValue(nil, bar), nil); err != nil {
			return errors.Wrap(err, "pebble batch set")
		}
	}
	mode := pebble.NoSync
	if p.sync {
		mode = pebble.Sync
	}
	return b.Commit(mode)
}

// Fetch scans the session window widened by extended hours, so pre- and post-market
// records reach the loader and are reported there.
func (p *PebbleStore) Fetch(ctx context.Context, symbol string, s model.Session) ([]model.Bar, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: barKey(symbol, s.Start.Add(-extendedHours)),
		UpperBound: barKey(symbol, s.End.Add(extendedHours)),
	})
	if err != nil {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "pebble iter %s: %v", symbol, err)
	}

	var bars []model.Bar
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			_ = iter.Close()
			return nil, err
		}
		ts, ok := decodeBarKeyTime(iter.Key())
		if !ok {
			continue
		}
		bar, ok := decodeBarValue(iter.Value())
		if !ok {
			_ = iter.Close()
			return nil, errors.Wrapf(exception.ErrMalformedBar, "pebble value %s@%s", symbol, ts.Format(time.RFC3339))
		}
		bar.Symbol = symbol
		bar.Time = ts
		bars = append(bars, bar)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "pebble scan %s: %v", symbol, err)
	}
	return bars, nil
}

func barKey(symbol string, t time.Time) []byte {
	key := make([]byte, 0, len(barKeyPrefix)+len(symbol)+1+8)
	key = append(key, barKeyPrefix...)
	key = append(key, symbol...)
	key = append(key, '/')
	nanos := t.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return binary.BigEndian.AppendUint64(key, uint64(nanos))
}

func decodeBarKeyTime(key []byte) (time.Time, bool) {
	if len(key) < 8 {
		return time.Time{}, false
	}
	nanos := binary.BigEndian.Uint64(key[len(key)-8:])
	return time.Unix(0, int64(nanos)).UTC(), true
}

func encodeBarValue(dst []byte, b model.Bar) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(b.Open))
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(b.High))
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(b.Low))
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(b.Close))
	return binary.LittleEndian.AppendUint64(dst, uint64(b.Volume))
}

func decodeBarValue(src []byte) (model.Bar, bool) {
	if len(src) != barValueSize {
		return model.Bar{}, false
	}
	return model.Bar{
		Open:   math.Float64frombits(binary.LittleEndian.Uint64(src[0:8])),
		High:   math.Float64frombits(binary.LittleEndian.Uint64(src[8:16])),
		Low:    math.Float64frombits(binary.LittleEndian.Uint64(src[16:24])),
		Close:  math.Float64frombits(binary.LittleEndian.Uint64(src[24:32])),
		Volume: int64(binary.LittleEndian.Uint64(src[32:40])),
	}, true
}
