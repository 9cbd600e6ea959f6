package barsource

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yanun0323/logs"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/conn"
	"marketfeed/pkg/exception"
)

const (
	schemeJSON     = "json:"
	schemeParquet  = "parquet:"
	schemePebble   = "pebble:"
	schemePostgres = "postgres:"
)

// Locators maps a symbol to where its bars live. Supported forms:
//
//	data/spy.json           JSON file, by extension
//	data/spy.parquet        parquet file, by extension
//	json:data/spy.dat       JSON file, explicit
//	parquet:data/spy.bin    parquet file, explicit
//	pebble:data/bars.db     pebble database shared by symbols
//	postgres://user@host/db postgres table "bars"
type Locators map[string]string

// Lookup finds the locator of symbol, falling back to a case-insensitive match.
func (l Locators) Lookup(symbol string) (string, bool) {
	if loc, ok := l[symbol]; ok {
		return loc, true
	}
	for key, loc := range l {
		if strings.EqualFold(key, symbol) {
			return loc, true
		}
	}
	return "", false
}

// ByLocator routes each symbol to the Source named by its locator. Database handles
// are opened on first use and shared; Close releases them.
type ByLocator struct {
	locators Locators

	mu      sync.Mutex
	pebbles map[string]*PebbleStore
	pgs     map[string]*Postgres
}

func NewByLocator(locators Locators) *ByLocator {
	return &ByLocator{
		locators: locators,
		pebbles:  make(map[string]*PebbleStore),
		pgs:      make(map[string]*Postgres),
	}
}

func (b *ByLocator) Fetch(ctx context.Context, symbol string, s model.Session) ([]model.Bar, error) {
	src, err := b.resolve(symbol)
	if err != nil {
		return nil, err
	}
	return src.Fetch(ctx, symbol, s)
}

func (b *ByLocator) resolve(symbol string) (Source, error) {
	loc, ok := b.locators.Lookup(symbol)
	if !ok || strings.TrimSpace(loc) == "" {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "no locator configured for %s", symbol)
	}

	switch {
	case strings.HasPrefix(loc, schemeJSON):
		return JSONFile{Path: strings.TrimPrefix(loc, schemeJSON)}, nil
	case strings.HasPrefix(loc, schemeParquet):
		return ParquetFile{Path: strings.TrimPrefix(loc, schemeParquet)}, nil
	case strings.HasPrefix(loc, schemePebble):
		return b.pebble(strings.TrimPrefix(loc, schemePebble))
	case strings.HasPrefix(loc, schemePostgres):
		return b.postgres(loc)
	}

	switch strings.ToLower(filepath.Ext(loc)) {
	case ".parquet":
		return ParquetFile{Path: loc}, nil
	default:
		return JSONFile{Path: loc}, nil
	}
}

func (b *ByLocator) pebble(dir string) (Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if store, ok := b.pebbles[dir]; ok {
		return store, nil
	}
	store, err := OpenPebble(PebbleOptions{Dir: dir, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	b.pebbles[dir] = store
	return store, nil
}

func (b *ByLocator) postgres(dsn string) (Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pg, ok := b.pgs[dsn]; ok {
		return pg, nil
	}
	client, err := conn.New(conn.Option{ConnString: dsn})
	if err != nil {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "postgres connect: %v", err)
	}
	pg := NewPostgres(client, "")
	b.pgs[dsn] = pg
	return pg, nil
}

// Close releases every database handle opened so far.
func (b *ByLocator) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for dir, store := range b.pebbles {
		if err := store.Close(); err != nil {
			logs.Errorf("close pebble %s, err: %+v", dir, err)
			if first == nil {
				first = err
			}
		}
		delete(b.pebbles, dir)
	}
	for dsn, pg := range b.pgs {
		if err := pg.Close(); err != nil {
			logs.Errorf("close postgres, err: %+v", err)
			if first == nil {
				first = err
			}
		}
		delete(b.pgs, dsn)
	}
	return first
}
