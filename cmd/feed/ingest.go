package main

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"marketfeed/internal/barsource"
	"marketfeed/internal/model"
	"marketfeed/internal/session"
)

type ingestOptions struct {
	db        string
	symbol    string
	sync      bool
	bucketize bool
}

func newIngestCmd() *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Load JSON or parquet bar files into a pebble bar store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := ingest(cmd.Context(), opts, args)
			if err != nil {
				return err
			}
			logs.Infof("ingested %d bars into %s", n, opts.db)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.db, "db", "", "pebble database directory")
	flags.StringVarP(&opts.symbol, "symbol", "s", "", "symbol of the bars; default is the file name without extension")
	flags.BoolVar(&opts.sync, "sync", false, "sync every batch to disk")
	flags.BoolVar(&opts.bucketize, "bucketize", true, "floor timestamps to the 5-minute bucket of their session")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func ingest(ctx context.Context, opts *ingestOptions, files []string) (int, error) {
	cal, err := session.NewCalendar()
	if err != nil {
		return 0, errors.Wrap(err, "build calendar")
	}
	store, err := barsource.OpenPebble(barsource.PebbleOptions{Dir: opts.db, Sync: opts.sync})
	if err != nil {
		return 0, errors.Wrap(err, "open pebble").With("db", opts.db)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logs.Errorf("close pebble %s, err: %+v", opts.db, err)
		}
	}()

	var total int
	for _, file := range files {
		symbol := opts.symbol
		if symbol == "" {
			symbol = symbolOf(file)
		}
		bars, err := readBars(ctx, file, symbol)
		if err != nil {
			return total, err
		}
		bars, sessions := keyBySession(cal, bars, opts.bucketize)
		if err := store.Put(bars...); err != nil {
			return total, errors.Wrap(err, "put bars").With("file", file)
		}
		for _, d := range slices.SortedFunc(maps.Keys(sessions), model.Date.Compare) {
			logs.Infof("ingested %s, symbol: %s, session: %s, bars: %d", file, symbol, d, sessions[d])
		}
		total += len(bars)
	}
	return total, nil
}

// keyBySession drops bars that belong to no trading session and counts the rest
// per session date. With bucketize, bar times are floored to their session bucket.
func keyBySession(cal *session.Calendar, bars []model.Bar, bucketize bool) ([]model.Bar, map[model.Date]int) {
	sessions := make(map[model.Date]int)
	kept := bars[:0]
	var skipped int
	for _, b := range bars {
		d, ok := cal.SessionDateOf(b.Time)
		if !ok {
			skipped++
			continue
		}
		if bucketize {
			b.Time = cal.Bucketize(b.Time)
		}
		sessions[d]++
		kept = append(kept, b)
	}
	if skipped > 0 {
		logs.Infof("skipped %d bars outside any trading session", skipped)
	}
	return kept, sessions
}

func readBars(ctx context.Context, file, symbol string) ([]model.Bar, error) {
	if strings.HasSuffix(strings.ToLower(file), ".parquet") {
		bars, err := barsource.ParquetFile{Path: file}.Fetch(ctx, symbol, model.Session{})
		if err != nil {
			return nil, errors.Wrap(err, "read parquet").With("file", file)
		}
		return bars, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read file").With("file", file)
	}
	bars, err := barsource.DecodeJSON(symbol, data)
	if err != nil {
		return nil, errors.Wrap(err, "decode json").With("file", file)
	}
	return bars, nil
}

func symbolOf(file string) string {
	base := filepath.Base(file)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return strings.ToUpper(base)
}
