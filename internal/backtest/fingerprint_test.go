package backtest

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	a := types.ParameterSet{}
	a["rsi_period"] = 14
	a["oversold"] = 30
	a["overbought"] = 70

	b := types.ParameterSet{}
	b["overbought"] = 70
	b["rsi_period"] = 14
	b["oversold"] = 30

	fa, err := Fingerprint("rsi", "BTCUSDT", start, end, a)
	require.NoError(t, err)
	fb, err := Fingerprint("rsi", "BTCUSDT", start, end, b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.True(t, strings.HasPrefix(fa, "backtest:rsi:BTCUSDT:"))

	// same instant in another zone
	local := start.In(time.FixedZone("UTC+7", 7*3600))
	fc, err := Fingerprint("rsi", "BTCUSDT", local, end, a)
	require.NoError(t, err)
	assert.Equal(t, fa, fc)
}

func TestFingerprint_Sensitive(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	params := types.ParameterSet{"rsi_period": 14, "oversold": 30}
	base, err := Fingerprint("rsi", "BTCUSDT", start, end, params)
	require.NoError(t, err)

	tests := []struct {
		name     string
		strategy string
		symbol   string
		start    time.Time
		end      time.Time
		params   types.ParameterSet
	}{
		{"strategy", "rsi_ma_cross", "BTCUSDT", start, end, params},
		{"symbol", "rsi", "ETHUSDT", start, end, params},
		{"start", "rsi", "BTCUSDT", start.Add(time.Hour), end, params},
		{"end", "rsi", "BTCUSDT", start, end.Add(time.Nanosecond), params},
		{"value", "rsi", "BTCUSDT", start, end, types.ParameterSet{"rsi_period": 14, "oversold": 25}},
		{"extra key", "rsi", "BTCUSDT", start, end, types.ParameterSet{"rsi_period": 14, "oversold": 30, "ma_period": 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := Fingerprint(tt.strategy, tt.symbol, tt.start, tt.end, tt.params)
			require.NoError(t, err)
			assert.NotEqual(t, base, fp)
		})
	}
}

func TestFingerprint_UnencodableParameters(t *testing.T) {
	_, err := Fingerprint("rsi", "BTCUSDT", time.Time{}, time.Time{}, types.ParameterSet{"x": math.NaN()})
	assert.Error(t, err)
}
