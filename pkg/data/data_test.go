package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func makeBars(closes ...float64) []types.OHLCV {
	bars := make([]types.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = types.OHLCV{
			Timestamp: day0.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestCSVProvider_LoadData(t *testing.T) {
	path := writeFile(t, "candles.csv", strings.Join([]string{
		"timestamp,open,high,low,close,volume",
		"2024-01-01 00:00:00,100,105,95,102,10",
		"2024-01-02 00:00:00,102,106,101,104,12",
		"2024-01-03 00:00:00,abc,106,101,104,12",
		"2024-01-04 00:00:00,104,103,101,104,12",
		"2024-01-05,104,108,103,107,9",
		"short,row",
	}, "\n"))

	bars, err := NewCSVProvider(nil).LoadData(path)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 102.0, bars[0].Close)
	assert.Equal(t, time.UTC, bars[0].Timestamp.Location())
	assert.Equal(t, day0.Add(4*24*time.Hour), bars[2].Timestamp)
}

func TestCSVProvider_BybitFormat(t *testing.T) {
	path := writeFile(t, "kline.csv", "start,open,high,low,close,volume,turnover\n"+
		"1704067200000,100,101,99,100.5,7,703.5\n")

	bars, err := NewCSVProviderWithFormat(BybitCSVFormat, nil).LoadData(path)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, day0, bars[0].Timestamp)
	assert.Equal(t, 703.5, bars[0].QuoteVolume)
}

func TestCSVProvider_Errors(t *testing.T) {
	_, err := NewCSVProvider(nil).LoadData(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindData))

	_, err = NewCSVProvider(nil).LoadData(writeFile(t, "empty.csv", ""))
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindData))
}

func TestValidateData(t *testing.T) {
	assert.NoError(t, ValidateData(makeBars(10, 11, 12)))

	tests := []struct {
		name   string
		mutate func([]types.OHLCV)
	}{
		{"zero price", func(b []types.OHLCV) { b[1].Low = 0 }},
		{"high below low", func(b []types.OHLCV) { b[1].High = b[1].Low - 1 }},
		{"negative volume", func(b []types.OHLCV) { b[2].Volume = -1 }},
		{"out of order", func(b []types.OHLCV) { b[2].Timestamp = day0 }},
		{"duplicate", func(b []types.OHLCV) { b[1].Timestamp = b[0].Timestamp }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := makeBars(10, 11, 12)
			tt.mutate(bars)
			err := ValidateData(bars)
			require.Error(t, err)
			assert.True(t, engineerrors.IsKind(err, engineerrors.KindData))
		})
	}

	assert.Error(t, ValidateData(nil))
}

func TestDataFilter(t *testing.T) {
	f := NewDefaultDataFilter()
	bars := makeBars(1, 2, 3, 4, 5)

	last := f.FilterByPeriod(bars, 48*time.Hour)
	require.Len(t, last, 3)
	assert.Equal(t, 3.0, last[0].Close)
	assert.Len(t, f.FilterByPeriod(bars, 0), 5)

	mid := f.FilterByDateRange(bars, bars[1].Timestamp, bars[3].Timestamp)
	assert.Len(t, mid, 3)
	assert.Len(t, f.FilterByDateRange(bars, bars[3].Timestamp, time.Time{}), 2)

	shuffled := []types.OHLCV{bars[2], bars[0], bars[2], bars[1]}
	normalized := f.Normalize(shuffled)
	require.Len(t, normalized, 3)
	assert.NoError(t, f.ValidateTimeSequence(normalized))
	assert.Equal(t, 1.0, normalized[0].Close)
	assert.Error(t, f.ValidateTimeSequence(shuffled))
}

func TestParquetRoundTrip(t *testing.T) {
	bars := makeBars(100, 101, 102)
	bars[1].TradeCount = 42
	path := filepath.Join(t.TempDir(), "nested", "candles.parquet")
	require.NoError(t, WriteParquet(path, bars))

	got, err := NewParquetProvider().LoadData(path)
	require.NoError(t, err)
	assert.Equal(t, bars, got)

	_, err = NewParquetProvider().LoadData(filepath.Join(t.TempDir(), "none.parquet"))
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindData))
}

type countingProvider struct {
	DataProvider
	loads int
}

func (p *countingProvider) LoadData(source string) ([]types.OHLCV, error) {
	p.loads++
	return p.DataProvider.LoadData(source)
}

func TestCachedProvider_LoadsOnce(t *testing.T) {
	path := writeFile(t, "c.csv", "timestamp,open,high,low,close,volume\n2024-01-01 00:00:00,1,2,1,2,3\n")
	inner := &countingProvider{DataProvider: NewCSVProvider(nil)}
	cached := NewCachedProvider(inner, nil)

	first, err := cached.LoadData(path)
	require.NoError(t, err)
	first[0].Close = 999

	second, err := cached.LoadData(path)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.loads)
	assert.Equal(t, 2.0, second[0].Close)
	assert.Equal(t, 1, cached.GetCache().Size())
	assert.Equal(t, "Cached CSV Provider", cached.GetName())

	cached.ClearCache()
	_, err = cached.LoadData(path)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.loads)
}

func TestDataManager_Load(t *testing.T) {
	dir := t.TempDir()
	parquetPath := filepath.Join(dir, "bars.parquet")
	bars := makeBars(10, 11, 12, 13)
	// stored out of order with a duplicate
	require.NoError(t, WriteParquet(parquetPath, []types.OHLCV{bars[1], bars[0], bars[2], bars[3], bars[3]}))

	dm := NewDataManager(nil)
	got, err := dm.Load(parquetPath, 0, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, bars, got)

	got, err = dm.Load(parquetPath, 24*time.Hour, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = dm.Load(parquetPath, 0, day0.AddDate(1, 0, 0), time.Time{})
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindData))
}

func TestFileLocator(t *testing.T) {
	loc := NewDefaultFileLocator(nil)
	assert.Equal(t, "240", loc.ConvertIntervalToMinutes("4h"))
	assert.Equal(t, "1440", loc.ConvertIntervalToMinutes("1d"))
	assert.Equal(t, "15", loc.ConvertIntervalToMinutes("15"))

	root := t.TempDir()
	want := filepath.Join(root, "bybit", "linear", "BTCUSDT", "60", "candles.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(want), 0755))
	require.NoError(t, os.WriteFile(want, nil, 0644))

	assert.Equal(t, want, loc.FindDataFile(root, "bybit", "btcusdt", "1h"))
	assert.Empty(t, loc.FindDataFile(root, "bybit", "ETHUSDT", "1h"))
}

func TestParseTrailingPeriod(t *testing.T) {
	d, ok := ParseTrailingPeriod("30d")
	assert.True(t, ok)
	assert.Equal(t, 30*24*time.Hour, d)

	d, ok = ParseTrailingPeriod("168h")
	assert.True(t, ok)
	assert.Equal(t, 168*time.Hour, d)

	_, ok = ParseTrailingPeriod("soon")
	assert.False(t, ok)
}

func TestBenchmarkReturns(t *testing.T) {
	bars := makeBars(1, 1, 1, 1)
	bench := makeBars(100, 110, 99)
	bench = append(bench[:1], bench[2:]...) // drop day 1

	returns := BenchmarkReturns(bars, bench)
	require.Len(t, returns, 3)
	assert.Equal(t, []float64{0, 0, 0}, returns)

	returns = BenchmarkReturns(bars[:3], makeBars(100, 110, 99))
	assert.InDeltaSlice(t, []float64{0.1, -0.1}, returns, 1e-12)
}
