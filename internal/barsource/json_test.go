package barsource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/testutil"
	"marketfeed/pkg/exception"
)

func TestDecodeJSONArray(t *testing.T) {
	data := []byte(`[
		{"ts":"2024-01-03T14:30:00Z","open":470.1,"high":471,"low":469.5,"close":470.8,"volume":12000},
		{"ts":"2024-01-03T14:35:00","open":"470.8","high":"471.2","low":"470.0","close":"471.0","volume":"9000"}
	]`)

	bars, err := DecodeJSON("SPY", data)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "SPY", bars[0].Symbol)
	assert.Equal(t, time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 470.1, bars[0].Open)
	assert.Equal(t, int64(12000), bars[0].Volume)

	assert.Equal(t, time.Date(2024, 1, 3, 14, 35, 0, 0, time.UTC), bars[1].Time)
	assert.Equal(t, 471.2, bars[1].High)
	assert.Equal(t, int64(9000), bars[1].Volume)
}

func TestDecodeJSONEnvelope(t *testing.T) {
	data := []byte(`{"data":[{"timestamp_utc":"2024-01-03T09:30:00-05:00","open":13,"high":13.5,"low":12.8,"close":13.2}]}`)

	bars, err := DecodeJSON("VIX", data)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC), bars[0].Time)
	assert.Zero(t, bars[0].Volume)
}

func TestDecodeJSONErrors(t *testing.T) {
	testCases := []struct {
		name string
		data string
		want error
	}{
		{name: "not json", data: `{"data":`, want: exception.ErrDataUnavailable},
		{name: "missing ts", data: `[{"open":1,"high":1,"low":1,"close":1}]`, want: exception.ErrMalformedBar},
		{name: "bad ts", data: `[{"ts":"yesterday","open":1,"high":1,"low":1,"close":1}]`, want: exception.ErrMalformedBar},
		{name: "fractional volume", data: `[{"ts":"2024-01-03T14:30:00Z","open":1,"high":1,"low":1,"close":1,"volume":1.5}]`, want: exception.ErrMalformedBar},
		{name: "volume beyond int64", data: `[{"ts":"2024-01-03T14:30:00Z","open":1,"high":1,"low":1,"close":1,"volume":"9223372036854775808"}]`, want: exception.ErrMalformedBar},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeJSON("SPY", []byte(tc.data))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestJSONFileRoundTrip(t *testing.T) {
	s := testutil.Session(t, 2024, time.January, 3)
	want := testutil.SessionBars("SPY", s, 470, 0, 1, 2, 3)

	data, err := EncodeJSON(want)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "spy.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := JSONFile{Path: path}.Fetch(t.Context(), "SPY", s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJSONFileMissing(t *testing.T) {
	s := testutil.Session(t, 2024, time.January, 3)
	_, err := JSONFile{Path: filepath.Join(t.TempDir(), "missing.json")}.Fetch(t.Context(), "SPY", s)
	assert.ErrorIs(t, err, exception.ErrDataUnavailable)
}
